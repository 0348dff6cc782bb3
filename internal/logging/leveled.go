package logging

import (
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

var _ retryablehttp.LeveledLogger = Leveled{}

// Leveled adapts a zerolog.Logger to retryablehttp.LeveledLogger. The
// alternating key/value pairs become structured fields.
type Leveled struct {
	Logger zerolog.Logger
}

func (l Leveled) Error(msg string, keysAndValues ...interface{}) {
	fields(l.Logger.Error(), keysAndValues).Msg(msg)
}

func (l Leveled) Info(msg string, keysAndValues ...interface{}) {
	fields(l.Logger.Info(), keysAndValues).Msg(msg)
}

func (l Leveled) Debug(msg string, keysAndValues ...interface{}) {
	fields(l.Logger.Debug(), keysAndValues).Msg(msg)
}

func (l Leveled) Warn(msg string, keysAndValues ...interface{}) {
	fields(l.Logger.Warn(), keysAndValues).Msg(msg)
}

func fields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, keysAndValues[i+1])
	}
	return e
}
