package match

import (
	"fmt"
	"math"
	"time"
)

// Retrain outcome reasons
const (
	ReasonInsufficientPositive = "insufficient_positive"
	ReasonInsufficientNegative = "insufficient_negative"
	ReasonInsufficientTotal    = "insufficient_total"
	ReasonConverged            = "converged"
)

const (
	minThreshold  = 0.01
	thresholdGap  = 0.01
	changeEpsilon = 1e-12
)

// RetrainPolicy controls retrain preconditions and step sizes
type RetrainPolicy struct {
	MinPositive   int
	MinNegative   int
	MinTotal      int
	LearningRate  float64
	ThresholdRate float64
	Now           func() time.Time
}

// DefaultRetrainPolicy returns 5 positive, 5 negative, 20 total, learning rate 0.1
func DefaultRetrainPolicy() RetrainPolicy {
	return RetrainPolicy{
		MinPositive:   5,
		MinNegative:   5,
		MinTotal:      20,
		LearningRate:  0.1,
		ThresholdRate: 0.5,
		Now:           time.Now,
	}
}

// RetrainReport describes what a retrain did or why it did nothing
type RetrainReport struct {
	Applied      bool               `json:"applied"`
	Reason       string             `json:"reason,omitempty"`
	Positive     int                `json:"positive"`
	Negative     int                `json:"negative"`
	Total        int                `json:"total"`
	Skipped      int                `json:"skipped"`
	FromVersion  int64              `json:"from_version"`
	ToVersion    int64              `json:"to_version"`
	Correlations map[string]float64 `json:"correlations,omitempty"`
}

// Err returns an ErrModelState error for no-op retrains
func (r RetrainReport) Err() error {
	if r.Applied {
		return nil
	}
	return fmt.Errorf("%w: retrain skipped: %s", ErrModelState, r.Reason)
}

// Retrain returns a new model nudged toward the labeled examples. The input model is never modified.
// When preconditions fail or nothing changes the input model is returned with Applied=false.
func Retrain(model Model, examples []Example, policy RetrainPolicy) (Model, RetrainReport) {
	report := RetrainReport{FromVersion: model.Version, ToVersion: model.Version}

	valid := make([]Example, 0, len(examples))
	for _, ex := range examples {
		if !ex.Features.Valid() {
			report.Skipped++
			continue
		}
		valid = append(valid, ex)
		if ex.IsCorrect {
			report.Positive++
		} else {
			report.Negative++
		}
	}
	report.Total = len(valid)

	switch {
	case report.Positive < policy.MinPositive:
		report.Reason = ReasonInsufficientPositive
		return model, report
	case report.Negative < policy.MinNegative:
		report.Reason = ReasonInsufficientNegative
		return model, report
	case report.Total < policy.MinTotal:
		report.Reason = ReasonInsufficientTotal
		return model, report
	}

	corr := featureCorrelations(valid)
	report.Correlations = make(map[string]float64, FeatureCount)
	for i, c := range corr {
		report.Correlations[Feature(i).String()] = c
	}

	next := model
	next.Weights = nudgeWeights(model.Weights, corr, policy.LearningRate)

	scores := make([]float64, len(valid))
	labels := make([]bool, len(valid))
	for i, ex := range valid {
		scores[i] = next.Score(ex.Features)
		labels[i] = ex.IsCorrect
	}
	next.Thresholds = nudgeThresholds(model.Thresholds, scores, labels, policy.ThresholdRate)

	if sameWeights(model.Weights, next.Weights) && sameThresholds(model.Thresholds, next.Thresholds) {
		report.Reason = ReasonConverged
		return model, report
	}

	next.Version = model.Version + 1
	now := time.Now
	if policy.Now != nil {
		now = policy.Now
	}
	next.TrainedAt = now().UTC()

	report.Applied = true
	report.ToVersion = next.Version
	return next, report
}

// featureCorrelations computes the point-biserial correlation of each feature with the label
func featureCorrelations(examples []Example) [FeatureCount]float64 {
	var corr [FeatureCount]float64
	n := float64(len(examples))
	if n == 0 {
		return corr
	}

	for f := 0; f < FeatureCount; f++ {
		var sumAll, sumPos, sumNeg float64
		var nPos, nNeg float64
		for _, ex := range examples {
			v := ex.Features.Values()[f]
			sumAll += v
			if ex.IsCorrect {
				sumPos += v
				nPos++
			} else {
				sumNeg += v
				nNeg++
			}
		}
		if nPos == 0 || nNeg == 0 {
			continue
		}

		mean := sumAll / n
		var variance float64
		for _, ex := range examples {
			d := ex.Features.Values()[f] - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / n)
		if sd == 0 {
			continue
		}

		p := nPos / n
		q := nNeg / n
		r := (sumPos/nPos - sumNeg/nNeg) / sd * math.Sqrt(p*q)
		corr[f] = math.Max(-1, math.Min(1, r))
	}
	return corr
}

// nudgeWeights moves each weight by rate*corr, clamps at zero and renormalizes to sum 1
func nudgeWeights(w Weights, corr [FeatureCount]float64, rate float64) Weights {
	values := w.Values()
	var sum float64
	for i := range values {
		values[i] = math.Max(0, values[i]+rate*corr[i])
		sum += values[i]
	}
	if sum == 0 || math.IsNaN(sum) {
		return w
	}
	for i := range values {
		values[i] /= sum
	}
	return WeightsFromValues(values)
}

// nudgeThresholds moves each tier boundary toward the midpoint between the mean score of
// examples classified correctly at that boundary and the mean score of those misclassified
func nudgeThresholds(t Thresholds, scores []float64, labels []bool, rate float64) Thresholds {
	b := t.bounds()
	for k := range b {
		var correctSum, wrongSum float64
		var nCorrect, nWrong int
		for i, s := range scores {
			accepted := s >= b[k]
			if accepted == labels[i] {
				correctSum += s
				nCorrect++
			} else {
				wrongSum += s
				nWrong++
			}
		}
		if nWrong == 0 || nCorrect == 0 {
			continue
		}
		mid := (correctSum/float64(nCorrect) + wrongSum/float64(nWrong)) / 2
		b[k] += rate * (mid - b[k])
	}
	return thresholdsFromBounds(orderBounds(b))
}

// orderBounds keeps thresholds strictly increasing inside (0, 1]
func orderBounds(b [4]float64) [4]float64 {
	b[0] = math.Max(b[0], minThreshold)
	for k := 1; k < len(b); k++ {
		b[k] = math.Max(b[k], b[k-1]+thresholdGap)
	}
	b[len(b)-1] = math.Min(b[len(b)-1], 1.0)
	for k := len(b) - 2; k >= 0; k-- {
		b[k] = math.Min(b[k], b[k+1]-thresholdGap)
	}
	return b
}

func sameWeights(a, b Weights) bool {
	av, bv := a.Values(), b.Values()
	for i := range av {
		if math.Abs(av[i]-bv[i]) > changeEpsilon {
			return false
		}
	}
	return true
}

func sameThresholds(a, b Thresholds) bool {
	ab, bb := a.bounds(), b.bounds()
	for i := range ab {
		if math.Abs(ab[i]-bb[i]) > changeEpsilon {
			return false
		}
	}
	return true
}
