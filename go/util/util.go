// Package util contains small helpers shared by the rest of the module.
package util

import (
	"io"

	"go.skia.org/bbclient/go/sklog"
)

const (
	MICROS_TO_NANOS = int64(1000)
	SECS_TO_MICROS  = int64(1000000)
)

// Close wraps an io.Closer and logs an error if one is returned.
func Close(c io.Closer) {
	if err := c.Close(); err != nil {
		sklog.Errorf("Failed to Close(): %v", err)
	}
}
