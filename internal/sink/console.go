// internal/sink/console.go

package sink

import (
	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/bus"
)

// ConsoleSink echoes bus traffic to the structured log. It is the default
// listener when no file sink is configured.
type ConsoleSink struct {
	logger *zap.Logger
}

// NewConsoleSink builds the sink.
func NewConsoleSink(logger *zap.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logger.Named("console_sink")}
}

// Attach subscribes the sink to every topic on the bus.
func (s *ConsoleSink) Attach(b *bus.Bus) {
	b.On(bus.TopicInfo, func(ev bus.Event) {
		msg, _ := ev.Payload.(string)
		s.logger.Info(msg,
			zap.String("source", ev.Source),
			zap.String("url", ev.Metadata.PageURL))
	})
	b.On(bus.TopicError, func(ev bus.Event) {
		msg, _ := ev.Payload.(string)
		s.logger.Error(msg,
			zap.String("source", ev.Source),
			zap.String("url", ev.Metadata.PageURL))
	})
	b.On(bus.TopicSave, func(ev bus.Event) {
		s.logger.Info("Result",
			zap.String("source", ev.Source),
			zap.String("url", ev.Metadata.PageURL),
			zap.Any("data", ev.Payload))
	})
}
