package event

import (
	"io"

	"github.com/sirupsen/logrus"
)

// BusOption configures an event Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// logger receives panic reports from subscribers.
	logger *logrus.Entry

	// panicHandler is called when a handler panics.
	panicHandler PanicHandler
}

// PanicHandler is called with the event name and the recovered value when a
// subscriber panics.
type PanicHandler func(name string, recovered any)

func defaultBusConfig() busConfig {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return busConfig{logger: logrus.NewEntry(l)}
}

// WithLogger sets the logger used for subscriber failures.
func WithLogger(l *logrus.Entry) BusOption {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPanicHandler sets a callback invoked when a subscriber panics.
func WithPanicHandler(h PanicHandler) BusOption {
	return func(c *busConfig) {
		c.panicHandler = h
	}
}
