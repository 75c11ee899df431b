package monitor

import (
	"math"

	"github.com/cyclopcam/wellmon/pkg/gen"
	"github.com/cyclopcam/wellmon/server/detect"
)

// Peak-weighted averaging.
//
// A plain mean buries rare, operationally significant readings under a long
// run of neutral frames. Both schemes below up-weight the tail that matters:
// readings that deviate from the neutral baseline (visual), or that cross the
// high-risk threshold (text). The cost is that the result is non-linear and
// non-associative: aggregating two sub-windows and then combining them is NOT
// equivalent to aggregating the union. That is a known property of the
// algorithm, not a bug. Callers must aggregate over the full event set they
// care about, never over previously aggregated values.

const (
	// NeutralBaseline is the emotion score that the classifier maps "Neutral" to.
	NeutralBaseline = 0.45
	// SignificanceThreshold is the minimum deviation from neutral for a
	// reading to count as an emotional peak.
	SignificanceThreshold = 0.12
	// HighRiskThreshold is the score above which a text-derived depression
	// reading is considered high risk.
	HighRiskThreshold = 0.65
)

const (
	peakWeight     = 0.7
	overallWeight  = 0.3
	highRiskWeight = 0.8
	baselineWeight = 0.2
)

// PeakWeightedAverage reduces visual emotion scores (0..1) to one
// representative value. Scores that deviate significantly from the neutral
// baseline get 70% of the weight; the plain mean gets the remaining 30%.
// With no significant deviations it degenerates to the plain mean.
// An empty slice returns 0, and a single score is returned as-is.
func PeakWeightedAverage(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	if len(scores) == 1 {
		return scores[0]
	}
	overallAvg := gen.Mean(scores)
	significant := []float64{}
	for _, score := range scores {
		if math.Abs(score-NeutralBaseline) >= SignificanceThreshold {
			significant = append(significant, score)
		}
	}
	if len(significant) == 0 {
		return overallAvg
	}
	peakAvg := gen.Mean(significant)
	return peakAvg*peakWeight + overallAvg*overallWeight
}

// HighRiskWeightedAverage reduces text-derived depression scores (0..1) to
// one representative value, for the downstream sentiment pipeline. NaN
// entries mark absent readings and are discarded before anything else.
// Scores at or above the high-risk threshold get 80% of the weight.
func HighRiskWeightedAverage(scores []float64) float64 {
	present := make([]float64, 0, len(scores))
	for _, score := range scores {
		if !math.IsNaN(score) {
			present = append(present, score)
		}
	}
	if len(present) == 0 {
		return 0.0
	}
	if len(present) == 1 {
		return present[0]
	}
	overallAvg := gen.Mean(present)
	highRisk := []float64{}
	for _, score := range present {
		if score >= HighRiskThreshold {
			highRisk = append(highRisk, score)
		}
	}
	if len(highRisk) == 0 {
		return overallAvg
	}
	return gen.Mean(highRisk)*highRiskWeight + overallAvg*baselineWeight
}

// DominantEmotion is the most frequent emotion label across events.
// Ties are broken by whichever label was seen first.
func DominantEmotion(events []detect.Detection) string {
	if len(events) == 0 {
		return ""
	}
	labels := make([]string, 0, len(events))
	for _, ev := range events {
		labels = append(labels, ev.Emotion)
	}
	mode, _ := gen.Mode(labels)
	return mode
}

func eventScores(events []detect.Detection) []float64 {
	scores := make([]float64, 0, len(events))
	for _, ev := range events {
		scores = append(scores, ev.Score)
	}
	return scores
}
