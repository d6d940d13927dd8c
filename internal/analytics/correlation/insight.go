package correlation

import "fmt"

// Insight renders a correlation value as a sentence about two metrics.
//
// The bands overlap as plain ranges, so the checks must run in this order
// and the first match wins.
func Insight(labelA, labelB string, value float64) string {
	if value > 0.6 {
		return fmt.Sprintf("%s and %s are strongly correlated: they tend to rise and fall together.", labelA, labelB)
	} else if value > 0.3 {
		return fmt.Sprintf("%s and %s show a mild correlation.", labelA, labelB)
	} else if value < -0.6 {
		return fmt.Sprintf("%s increases as %s decreases.", labelA, labelB)
	} else if value < -0.3 {
		return fmt.Sprintf("%s and %s show a mild negative correlation.", labelA, labelB)
	}
	return fmt.Sprintf("%s and %s are mostly independent.", labelA, labelB)
}

// PairInsight renders the insight for a matrix pair.
func PairInsight(p Pair) string {
	return Insight(p.A, p.B, p.Value)
}
