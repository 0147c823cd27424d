package indicator

import (
	"log"
)

// LogSink only logs what the indicator would show. It backs the "log"
// output and dry-run mode.
type LogSink struct {
	logger *log.Logger
	prefix string
}

// NewLogSink creates a logging sink. prefix is prepended to every line,
// e.g. "DRY RUN: ".
func NewLogSink(logger *log.Logger, prefix string) *LogSink {
	return &LogSink{logger: logger, prefix: prefix}
}

func (l *LogSink) Set(color Color, pattern Pattern) error {
	l.logger.Printf("%sIndicator %s (on %v, off %v)", l.prefix, color, pattern.On, pattern.Off)
	return nil
}

func (l *LogSink) Clear() error {
	l.logger.Printf("%sIndicator cleared", l.prefix)
	return nil
}
