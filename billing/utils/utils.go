package utils

import (
	"os"
	"strconv"
)

// FromEnv returns the value of the environment variable key, or otherwise
// when it is unset or empty.
func FromEnv(key, otherwise string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return otherwise
}

// ParseIntOr parses s as an int, returning defaultVal when s is empty or
// malformed.
func ParseIntOr(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return i
}

func GetEnvInt(varName string, defaultVal int) int {
	v := os.Getenv(varName)
	if v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultVal
}
