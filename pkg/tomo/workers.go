package tomo

import "sync"

// chunkCount returns how many non-empty contiguous chunks n items split into
// when spread over at most workers goroutines.
func chunkCount(n, workers int) int {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		return 1
	}
	perWorker := (n + workers - 1) / workers
	return (n + perWorker - 1) / perWorker
}

// parallelViews splits [0, n) into contiguous chunks, one per worker, and
// runs fn on each. The split depends only on n and workers, so results that
// are combined per chunk are deterministic. The first error by worker index
// is returned.
func parallelViews(n, workers int, fn func(worker, start, end int) error) error {
	chunks := chunkCount(n, workers)
	if chunks <= 1 {
		return fn(0, 0, n)
	}
	perWorker := (n + chunks - 1) / chunks

	errs := make([]error, chunks)
	var wg sync.WaitGroup
	for w := 0; w < chunks; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			errs[worker] = fn(worker, start, end)
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
