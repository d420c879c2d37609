package reconstruction

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ValidationMetrics holds the reconstruction quality metrics. Every metric
// except DataResidual compares the reconstruction against the phantom.
type ValidationMetrics struct {
	// RMSE (Root Mean Square Error) is the root of the mean squared voxel
	// difference. Lower is better.
	RMSE float64

	// SSIM (Structural Similarity Index) over the whole volume, computed with
	// the dynamic range of the phantom. 1 means identical.
	SSIM float64

	// Correlation is the Pearson correlation of the voxel values
	Correlation float64

	// MutualInformation is the Gaussian estimate -½·log(1 - ρ²) in nats.
	// Higher values indicate better information preservation.
	MutualInformation float64

	// EntropyDiff is the absolute difference of the histogram entropies in
	// nats. Lower is better.
	EntropyDiff float64

	// DataResidual is ‖A x - d‖ of the reconstruction against the projections
	DataResidual float64
}

// entropyBins is the histogram resolution used for entropy.
const entropyBins = 256

// calculateValidationMetrics compares the reconstruction with the phantom.
func (r *Reconstructor) calculateValidationMetrics() {
	truth, recon := r.truth.Data, r.volume.Data
	r.metrics = ValidationMetrics{
		RMSE:              calculateRMSE(truth, recon),
		SSIM:              calculateSSIM(truth, recon),
		Correlation:       calculateCorrelation(truth, recon),
		MutualInformation: calculateMutualInformation(truth, recon),
		EntropyDiff:       math.Abs(calculateEntropy(truth) - calculateEntropy(recon)),
		DataResidual:      r.result.DataResidual,
	}
}

// calculateRMSE computes the root mean square error
func calculateRMSE(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}
	return floats.Distance(original, reconstructed, 2) / math.Sqrt(float64(n))
}

// calculateCorrelation returns 0 when either input is constant.
func calculateCorrelation(original, reconstructed []float64) float64 {
	if len(original) != len(reconstructed) || len(original) < 2 {
		return 0
	}
	if stat.Variance(original, nil) == 0 || stat.Variance(reconstructed, nil) == 0 {
		return 0
	}
	return stat.Correlation(original, reconstructed, nil)
}

// calculateMutualInformation assumes jointly Gaussian inputs.
func calculateMutualInformation(original, reconstructed []float64) float64 {
	rho := calculateCorrelation(original, reconstructed)
	if math.Abs(rho) >= 1 {
		return math.Inf(1)
	}
	return -0.5 * math.Log(1-rho*rho)
}

// calculateSSIM computes the Structural Similarity Index
func calculateSSIM(original, reconstructed []float64) float64 {
	const k1 = 0.01
	const k2 = 0.03

	n := len(original)
	if n != len(reconstructed) || n < 2 {
		return 0
	}

	l := floats.Max(original) - floats.Min(original)
	if l == 0 {
		l = 1
	}
	c1 := (k1 * l) * (k1 * l)
	c2 := (k2 * l) * (k2 * l)

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)
	sigmaX := stat.Variance(original, nil)
	sigmaY := stat.Variance(reconstructed, nil)
	sigmaXY := stat.Covariance(original, reconstructed, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den
	}
	return 0
}

// calculateEntropy computes the Shannon entropy of a 256 bin histogram of
// data in nats. Constant data has zero entropy.
func calculateEntropy(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	lo, hi := floats.Min(data), floats.Max(data)
	if hi <= lo {
		return 0
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)
	dividers := make([]float64, entropyBins+1)
	floats.Span(dividers, lo, hi)
	// The last bin is half-open, so move its edge past the maximum.
	dividers[entropyBins] = math.Nextafter(hi, math.Inf(1))

	hist := stat.Histogram(nil, dividers, sorted, nil)
	floats.Scale(1/float64(n), hist)
	return stat.Entropy(hist)
}
