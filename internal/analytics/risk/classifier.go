package risk

import (
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/stats"
)

// Package risk maps simple linear combinations of daily metric means onto
// a {low, medium, high} band with an associated probability.
//
// Classifiers:
//
//   1. Stress
//      - p = clamp01((mean(stress) - 3) / 4)
//      - high > 0.7, medium > 0.4
//
//   2. Fatigue
//      - score = max(0, (6 - mean(sleep))*0.6 + ((2000 - mean(steps))/4000)*0.4)
//      - p = clamp01(score); high > 0.6, medium > 0.3
//
//   3. Dehydration
//      - p = clamp01((1.8 - mean(liters)) / 1.2) when mean < 1.8, else 0
//      - high > 0.6, medium > 0.3
//
// Bands are chosen from the clamped probability; the reported probability
// is that value rounded to 2 decimal places.

// Level is a categorical risk band.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Kind names a classifier.
type Kind string

const (
	KindStress      Kind = "stress"
	KindFatigue     Kind = "fatigue"
	KindDehydration Kind = "dehydration"
)

// Classification is the outcome of one classifier.
type Classification struct {
	Level       Level   `json:"level"`
	Probability float64 `json:"probability"`
}

// FatigueInput carries the two series the fatigue classifier combines.
type FatigueInput struct {
	Sleep []float64 `json:"sleepSeries"`
	Steps []float64 `json:"stepsSeries"`
}

// ClassifyStress classifies self-reported stress scores.
func ClassifyStress(series []float64) Classification {
	p := stats.Clamp01((stats.Mean(series) - 3) / 4)
	return classify(p, 0.7, 0.4)
}

// ClassifyFatigue combines sleep hours and step counts.
func ClassifyFatigue(in FatigueInput) Classification {
	score := (6-stats.Mean(in.Sleep))*0.6 + ((2000-stats.Mean(in.Steps))/4000)*0.4
	if score < 0 {
		score = 0
	}
	return classify(stats.Clamp01(score), 0.6, 0.3)
}

// ClassifyDehydration classifies daily water intake in liters.
func ClassifyDehydration(series []float64) Classification {
	mean := stats.Mean(series)
	p := 0.0
	if mean < 1.8 {
		p = stats.Clamp01((1.8 - mean) / 1.2)
	}
	return classify(p, 0.6, 0.3)
}

func classify(p, high, medium float64) Classification {
	level := LevelLow
	if p > high {
		level = LevelHigh
	} else if p > medium {
		level = LevelMedium
	}
	return Classification{Level: level, Probability: stats.Round(p, 2)}
}
