// Package env holds the collaborators injected into the fetch core:
// a log sink and a metric sink. Both may be absent.
package env

import "github.com/sirupsen/logrus"

type Environment struct {
	Log     LogSink
	Metrics MetricSink
}

// NewLogrusEnvironment wires both sinks to the same logrus logger.
func NewLogrusEnvironment(logger *logrus.Logger) Environment {
	return Environment{
		Log:     NewLogrusLog(logger),
		Metrics: NewLogrusCounters(logger),
	}
}

func (e Environment) Logger() LogSink {
	if e.Log == nil {
		return NopLog{}
	}
	return e.Log
}

func (e Environment) Meter() MetricSink {
	if e.Metrics == nil {
		return NopMetrics{}
	}
	return e.Metrics
}
