// Package sklog defines the logging functions (e.g. Info, Errorf, etc.),
// backed by github.com/jcgregorio/logger writing to stderr.
package sklog

import (
	"os"

	logger "github.com/jcgregorio/logger"
)

var std = logger.NewFromOptions(&logger.Options{
	SyncWriter:   os.Stderr,
	DepthDelta:   2,
	IncludeDebug: true,
})

// Functions to log at various levels.
// Debug, Info, Warning, Error, and Fatal use fmt.Sprint to format the
// arguments. Functions ending in f use fmt.Sprintf.

func Debug(msg ...interface{}) {
	std.Debug(msg...)
}

func Debugf(format string, v ...interface{}) {
	std.Debugf(format, v...)
}

func Info(msg ...interface{}) {
	std.Info(msg...)
}

func Infof(format string, v ...interface{}) {
	std.Infof(format, v...)
}

func Warning(msg ...interface{}) {
	std.Warning(msg...)
}

func Warningf(format string, v ...interface{}) {
	std.Warningf(format, v...)
}

func Error(msg ...interface{}) {
	std.Error(msg...)
}

func Errorf(format string, v ...interface{}) {
	std.Errorf(format, v...)
}

// Fatal* exits the program after logging.
func Fatal(msg ...interface{}) {
	std.Fatal(msg...)
}

func Fatalf(format string, v ...interface{}) {
	std.Fatalf(format, v...)
}

func Flush() {
	// The underlying logger writes synchronously.
}
