package utils

import "math"

// LinearRegression accumulates (x, y) observations incrementally and exposes
// the ordinary-least-squares slope and the Pearson correlation coefficient
// of the data seen so far. It only keeps running sums, so adding points is
// O(1) and the computed statistics do not depend on insertion order.
type LinearRegression struct {
	count int
	// distinctX tracks whether at least two different x values were observed.
	// With a single distinct x the variance of x is zero and both the slope
	// and the correlation are undefined.
	firstX    float64
	distinctX bool

	sumX  float64
	sumY  float64
	sumXX float64
	sumYY float64
	sumXY float64
}

// AddPoint records a single (x, y) observation.
func (r *LinearRegression) AddPoint(x, y float64) {
	if r.count == 0 {
		r.firstX = x
	} else if x != r.firstX {
		r.distinctX = true
	}
	r.count++
	r.sumX += x
	r.sumY += y
	r.sumXX += x * x
	r.sumYY += y * y
	r.sumXY += x * y
}

// Count returns the number of observations recorded so far.
func (r *LinearRegression) Count() int {
	return r.count
}

// Defined reports whether the regression statistics are meaningful, i.e.
// whether at least two observations with distinct x values were recorded.
func (r *LinearRegression) Defined() bool {
	return r.count >= 2 && r.distinctX
}

// Slope returns the ordinary-least-squares slope of y regressed on x.
// Returns 0 if the regression is not defined yet.
func (r *LinearRegression) Slope() float64 {
	if !r.Defined() {
		return 0
	}
	n := float64(r.count)
	denom := n*r.sumXX - r.sumX*r.sumX
	if denom == 0 {
		return 0
	}
	return (n*r.sumXY - r.sumX*r.sumY) / denom
}

// Correlation returns the Pearson correlation coefficient between x and y.
// Returns 0 if the regression is not defined yet or y has zero variance
// together with x (in which case no linear association can be claimed).
func (r *LinearRegression) Correlation() float64 {
	if !r.Defined() {
		return 0
	}
	n := float64(r.count)
	varX := n*r.sumXX - r.sumX*r.sumX
	varY := n*r.sumYY - r.sumY*r.sumY
	denom := math.Sqrt(varX * varY)
	if denom == 0 {
		// x varies but y is constant: zero covariance, zero correlation.
		return 0
	}
	return (n*r.sumXY - r.sumX*r.sumY) / denom
}

// IsWithinConfidence reports whether the current correlation and slope fall
// within the given tolerances around a perfect linear relationship
// (correlation 1, slope expectedSlope).
//
// While the regression is still undefined (fewer than two distinct x values)
// it returns true: there is not enough data to *reject* the relationship yet.
// Callers deciding a final positive verdict must therefore additionally check
// Defined().
func (r *LinearRegression) IsWithinConfidence(correlationErrorRange, expectedSlope, slopeErrorRange float64) bool {
	if !r.Defined() {
		return true
	}
	if math.Abs(r.Correlation()-1) > correlationErrorRange {
		return false
	}
	return math.Abs(r.Slope()-expectedSlope) <= slopeErrorRange
}
