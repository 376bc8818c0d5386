package review

import (
	"regexp"
	"strconv"
	"strings"
)

// Confidence scoring: prefer an explicit self-reported score in the model
// output; otherwise estimate one deterministically from the text's shape.

// Patterns are tried in priority order; the first match wins.
var confidencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)confidence[:\s]+\**(\d{1,3})\**\s*/\s*100`),
	regexp.MustCompile(`(?i)confidence[:\s]+\**(\d{1,3})\**\s*%`),
	regexp.MustCompile(`(?i)(\d{1,3})\s*/\s*100\s+confidence`),
	regexp.MustCompile(`(?i)(\d{1,3})\s*%\s+confidence`),
	regexp.MustCompile(`(?i)confidence\s+(?:score|level)[:\s]+\**(\d{1,3})`),
}

const (
	heuristicBase = 60
	heuristicCap  = 85
)

var bulletLine = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)

// ExtractConfidence returns the review's confidence score in [0,100].
func ExtractConfidence(text string) int {
	for _, p := range confidencePatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return clamp(n)
		}
	}
	return heuristicConfidence(text)
}

// heuristicConfidence estimates a score from structural signals. Must be
// deterministic given the same text.
func heuristicConfidence(text string) int {
	score := heuristicBase

	if strings.Contains(text, "```") {
		score += 10
	}
	if bulletLine.MatchString(text) {
		score += 5
	}

	words := len(strings.Fields(text))
	if words > 200 {
		score += 10
	}
	if words > 500 {
		score += 5
	}

	if score > heuristicCap {
		score = heuristicCap
	}
	return score
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
