package scanning

import "strings"

// Usage is a word-count based estimate of service consumption. It is not a
// billing figure.
type Usage struct {
	Input  int
	Output int
}

// Total returns Input + Output.
func (u Usage) Total() int {
	return u.Input + u.Output
}

// Add returns the sum of two estimates.
func (u Usage) Add(o Usage) Usage {
	return Usage{Input: u.Input + o.Input, Output: u.Output + o.Output}
}

// EstimateUsage counts two units per whitespace-separated word.
func EstimateUsage(prompt, response string) Usage {
	return Usage{
		Input:  2 * len(strings.Fields(prompt)),
		Output: 2 * len(strings.Fields(response)),
	}
}
