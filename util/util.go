package util

import (
	"time"
)

// Panics if there is an error, otherwise returns the result
func Try[T any](result T, err error) T {
	CheckErr(err)
	return result
}

// Panics if error is not null
func CheckErr(err error) {
	if err != nil {
		panic(err)
	}
}

// Returns the seconds elapsed since start, on the monotonic clock
func SecondsSince(start time.Time) float64 {
	return time.Since(start).Seconds()
}
