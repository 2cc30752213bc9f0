package corelog

import (
	"github.com/joeycumines/logiface"
)

// event is the minimal logiface.Event implementation backing FromLogiface.
// Grounded on eventloop/coverage_extra_test.go's testEvent, which is the
// teacher's own minimal Event used to validate this exact integration seam.
type event struct {
	logiface.UnimplementedEvent
	level logiface.Level
}

func (e *event) Level() logiface.Level        { return e.level }
func (e *event) AddField(key string, val any) {}

func toLogifaceLevel(l Level) logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// LogifaceLogger adapts a github.com/joeycumines/logiface typed logger into
// a corelog.Logger, so corekit components can log through logiface-backed
// sinks (zerolog, logrus, stumpy, ...) instead of corelog.Default.
type LogifaceLogger struct {
	L *logiface.Logger[*event]
}

// NewLogifaceLogger builds a minimal logiface.Logger[*event] from the given
// Writer and wraps it as a corelog.Logger.
func NewLogifaceLogger(writer logiface.Writer[*event]) *LogifaceLogger {
	return &LogifaceLogger{
		L: logiface.New[*event](
			logiface.WithEventFactory[*event](logiface.EventFactoryFunc[*event](func(level logiface.Level) *event {
				return &event{level: level}
			})),
			logiface.WithWriter[*event](writer),
		),
	}
}

func (l *LogifaceLogger) IsEnabled(level Level) bool {
	return toLogifaceLevel(level) <= l.L.Level()
}

func (l *LogifaceLogger) Log(entry Entry) {
	b := l.L.Build(toLogifaceLevel(entry.Level))
	if b == nil {
		return
	}
	b = b.Str("component", entry.Component).Str("op", entry.Op)
	for k, v := range entry.Context {
		if s, ok := v.(string); ok {
			b = b.Str(k, s)
		}
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}
