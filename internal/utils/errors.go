package utils

import (
	"fmt"

	"github.com/the127/blobyard/internal/logging"
)

func IgnoreError(f func() error) {
	_ = f()
}

func PanicOnError(f func() error, message string) {
	err := f()
	if err != nil {
		logging.Logger.Panic(fmt.Errorf("%s: %w", message, err))
	}
}

// LogOnError is PanicOnError for cleanups that may legitimately fail.
func LogOnError(f func() error, message string) {
	err := f()
	if err != nil {
		logging.Logger.Warnf("%s: %v", message, err)
	}
}
