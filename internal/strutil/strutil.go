// Package strutil provides small string-distance helpers used for
// "did you mean" suggestions on unrecognized CLI commands.
package strutil

import "strings"

// LevenshteinDistance calculates the case-insensitive Levenshtein edit
// distance between s1 and s2 using a space-optimized dynamic programming
// approach (two rows instead of a full matrix).
func LevenshteinDistance(s1, s2 string) int {
	s1Lower := strings.ToLower(s1)
	s2Lower := strings.ToLower(s2)

	if len(s1Lower) == 0 {
		return len(s2Lower)
	}
	if len(s2Lower) == 0 {
		return len(s1Lower)
	}

	prev := make([]int, len(s2Lower)+1)
	curr := make([]int, len(s2Lower)+1)

	for j := 0; j <= len(s2Lower); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(s1Lower); i++ {
		curr[0] = i
		for j := 1; j <= len(s2Lower); j++ {
			cost := 1
			if s1Lower[i-1] == s2Lower[j-1] {
				cost = 0
			}

			curr[j] = min3(
				curr[j-1]+1,
				prev[j]+1,
				prev[j-1]+cost,
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2Lower)]
}

// FindClosestCommand returns the command in validCommands closest to
// input by Levenshtein distance, along with that distance. If no command
// is within maxDistance, it returns an empty string.
func FindClosestCommand(input string, validCommands []string, maxDistance int) (string, int) {
	if len(validCommands) == 0 {
		return "", -1
	}

	closestCmd := ""
	minDistance := maxDistance + 1

	for _, cmd := range validCommands {
		distance := LevenshteinDistance(input, cmd)
		if distance < minDistance {
			minDistance = distance
			closestCmd = cmd
		}
	}

	if minDistance <= maxDistance {
		return closestCmd, minDistance
	}

	return "", minDistance
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
