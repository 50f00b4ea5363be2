// Package common provides shared logging and error infrastructure for the
// Strata content backend. The logging setup routes error-level output to
// stderr while everything else goes to stdout, so containerized deployments
// can treat the two streams differently.
//
// The logger is built on logrus for structured logging. All packages in the
// repository log through the global Logger instance so output formatting and
// level handling stay uniform.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stdout or stderr based on
// their level marker. Messages containing "level=error" go to stderr; all
// other messages go to stdout. The check is a plain byte scan on the final
// formatted output, so it works with both the text and JSON formatters.
type OutputSplitter struct{}

// Write implements io.Writer for the OutputSplitter.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the global logger instance for all Strata services.
var Logger = &logrus.Logger{
	Out:       &OutputSplitter{},
	Formatter: &logrus.TextFormatter{FullTimestamp: true},
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.InfoLevel,
}

// ConfigureLogger applies the configured level and format to the global
// logger. Unknown levels fall back to info; format "json" switches to the
// JSON formatter, anything else keeps text.
func ConfigureLogger(level, format string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	Logger.SetLevel(parsed)

	if format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
