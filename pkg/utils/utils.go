package utils

import (
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
)

func LogrusFieldsUnion(f1, f2 logrus.Fields) logrus.Fields {
	f := make(logrus.Fields)
	for k, v := range f1 {
		f[k] = v
	}
	for k, v := range f2 {
		f[k] = v
	}
	return f
}

const TraceIDLength = 8

// NewTraceID returns a random base62 id used to correlate log lines of one call.
func NewTraceID() string {
	id := ksuid.New().String()
	return id[len(id)-TraceIDLength:]
}

// TracePrefix renders "[id] ", generating the id when it is empty.
func TracePrefix(traceID string) string {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return "[" + traceID + "] "
}
