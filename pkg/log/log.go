// Package log provides a thin prefix-aware wrapper around logrus, shared by
// every agent component so log lines can be attributed to the subsystem
// that emitted them without each subsystem wiring up its own logger.
package log

import (
	"github.com/sirupsen/logrus"
)

// PrefixLogger wraps a logrus.FieldLogger, prepending a fixed prefix field
// to every log line. Components obtain one via NewPrefixLogger(name) and
// hold it for their lifetime.
type PrefixLogger struct {
	prefix string
	entry  *logrus.Entry
}

// NewPrefixLogger returns a PrefixLogger writing to the standard logrus
// logger, tagged with the given prefix. An empty prefix is valid.
func NewPrefixLogger(prefix string) *PrefixLogger {
	return NewPrefixLoggerWithLogger(prefix, logrus.StandardLogger())
}

// NewPrefixLoggerWithLogger returns a PrefixLogger backed by the given
// logrus.Logger instance, useful for tests that want to capture output.
func NewPrefixLoggerWithLogger(prefix string, logger *logrus.Logger) *PrefixLogger {
	entry := logrus.NewEntry(logger)
	if prefix != "" {
		entry = entry.WithField("component", prefix)
	}
	return &PrefixLogger{prefix: prefix, entry: entry}
}

// WithField returns a derived PrefixLogger carrying an additional field.
func (l *PrefixLogger) WithField(key string, value interface{}) *PrefixLogger {
	return &PrefixLogger{prefix: l.prefix, entry: l.entry.WithField(key, value)}
}

// WithError returns a derived PrefixLogger carrying the error field.
func (l *PrefixLogger) WithError(err error) *PrefixLogger {
	return &PrefixLogger{prefix: l.prefix, entry: l.entry.WithError(err)}
}

func (l *PrefixLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *PrefixLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *PrefixLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *PrefixLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// SetLevel sets the level of the underlying standard logger. Intended for
// use once at startup from the agent's config.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}
