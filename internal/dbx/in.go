package dbx

import "strings"

// MaxInParams caps the number of bound parameters per IN (...) list so
// queries stay well under SQLite's variable limit.
const MaxInParams = 500

// Placeholders returns "?, ?, ..." with n markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Chunks splits s into consecutive slices of at most size elements.
func Chunks[T any](s []T, size int) [][]T {
	if size <= 0 {
		size = MaxInParams
	}
	var out [][]T
	for len(s) > size {
		out = append(out, s[:size:size])
		s = s[size:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}

// Args converts a typed slice into query arguments.
func Args[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
