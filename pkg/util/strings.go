package util

import "strconv"

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// MaskToken keeps the first 8 characters of a credential for log output.
func MaskToken(token string) string {
	if len(token) > 8 {
		token = token[:8]
	}
	return token + "***"
}
