package config

import "strings"

// Problem is one invalid or missing configuration key.
type Problem struct {
	Key     string
	Message string
}

// Error reports configuration that cannot be used. It is returned before
// any network activity.
type Error struct {
	Problems []Problem
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Key+": "+p.Message)
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Has reports whether key has a problem.
func (e *Error) Has(key string) bool {
	for _, p := range e.Problems {
		if p.Key == key {
			return true
		}
	}
	return false
}
