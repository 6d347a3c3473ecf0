package env

import (
	"github.com/sirupsen/logrus"
)

// LogSink receives diagnostics from the fetch core.
// Implementations are best-effort and must never panic or exit the process.
type LogSink interface {
	Info(msg string, fields logrus.Fields)
	Error(msg string, err error, fields logrus.Fields)
	Fatal(msg string, err error, fields logrus.Fields)
}

// NopLog drops everything.
type NopLog struct{}

func (NopLog) Info(string, logrus.Fields)         {}
func (NopLog) Error(string, error, logrus.Fields) {}
func (NopLog) Fatal(string, error, logrus.Fields) {}

type logrusLog struct {
	entry *logrus.Entry
}

// NewLogrusLog adapts a logrus logger to LogSink.
// Fatal messages are written at logrus.FatalLevel without calling the logger's exit func.
func NewLogrusLog(logger *logrus.Logger) LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &logrusLog{entry: logrus.NewEntry(logger)}
}

// NewLogrusEntryLog is like NewLogrusLog but keeps the fields already set on entry.
func NewLogrusEntryLog(entry *logrus.Entry) LogSink {
	return &logrusLog{entry: entry}
}

func (l *logrusLog) Info(msg string, fields logrus.Fields) {
	l.entry.WithFields(fields).Info(msg)
}

func (l *logrusLog) Error(msg string, err error, fields logrus.Fields) {
	l.withError(err, fields).Error(msg)
}

func (l *logrusLog) Fatal(msg string, err error, fields logrus.Fields) {
	// Entry.Fatal would call os.Exit
	l.withError(err, fields).Log(logrus.FatalLevel, msg)
}

func (l *logrusLog) withError(err error, fields logrus.Fields) *logrus.Entry {
	e := l.entry.WithFields(fields)
	if err != nil {
		e = e.WithField("Error", err)
	}
	return e
}
