package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Level type
type Level uint32

const (
	// ErrorLevel level. Logs. Used for errors that should definitely be noted.
	ErrorLevel Level = iota
	// WarnLevel level. Non-critical entries that deserve eyes.
	WarnLevel
	// InfoLevel level. General operational entries about what's going on inside the
	// application.
	InfoLevel
	// DebugLevel level. Usually only enabled when debugging. Very verbose logging.
	DebugLevel
	// TraceLevel level. Designates finer-grained informational events than the Debug.
	// Per-frame relay logging happens at this level.
	TraceLevel
)

var LevelMap = map[Level]string{
	ErrorLevel: "error",
	WarnLevel:  "warn",
	InfoLevel:  "info",
	DebugLevel: "debug",
	TraceLevel: "trace",
}

var zerologLevels = map[Level]zerolog.Level{
	ErrorLevel: zerolog.ErrorLevel,
	WarnLevel:  zerolog.WarnLevel,
	InfoLevel:  zerolog.InfoLevel,
	DebugLevel: zerolog.DebugLevel,
	TraceLevel: zerolog.TraceLevel,
}

// ParseLevel converts a level name into a Level
func ParseLevel(name string) (Level, error) {
	for level, n := range LevelMap {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return level, nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", name)
}

type LogPayload struct {
	Level   Level
	Fields  map[string]interface{}
	Error   error
	Message string
}

type LogFunc func(payload LogPayload)

func NoopLogFunc(payload LogPayload) {}

func NewNoopLogger() *LogWrapper {
	return NewLogWrapper(NoopLogFunc, map[string]interface{}{})
}

// NewZerologLogFunc returns a LogFunc that writes through the provided zerolog
// logger, dropping payloads more verbose than level
func NewZerologLogFunc(zl zerolog.Logger, level Level) LogFunc {
	zl = zl.Level(zerologLevels[level])

	return func(payload LogPayload) {
		if level < payload.Level {
			return
		}

		evt := zl.WithLevel(zerologLevels[payload.Level])
		if len(payload.Fields) > 0 {
			evt = evt.Fields(payload.Fields)
		}
		if payload.Error != nil {
			evt = evt.Err(payload.Error)
		}
		evt.Msg(payload.Message)
	}
}

// New builds a log wrapper writing json (or human readable console output
// when format is "console") to w. A nil writer defaults to stderr.
func New(level Level, format string, w io.Writer) *LogWrapper {
	if w == nil {
		w = os.Stderr
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}

	zl := zerolog.New(w).With().Timestamp().Logger()
	return NewLogWrapper(NewZerologLogFunc(zl, level), nil)
}

type LogWrapper struct {
	LogFunc LogFunc
	Fields  map[string]interface{}
	Error   error
}

// NewLogWrapper returns a new log wrapper
func NewLogWrapper(logFunc LogFunc, fields map[string]interface{}) *LogWrapper {
	if fields == nil {
		fields = map[string]interface{}{}
	}

	if logFunc == nil {
		logFunc = NoopLogFunc
	}

	return &LogWrapper{
		LogFunc: logFunc,
		Fields:  fields,
	}
}

// clone clones a log wrapper to iteratively build the log
func (l *LogWrapper) clone() *LogWrapper {
	newWrapper := &LogWrapper{
		LogFunc: l.LogFunc,
		Error:   l.Error,
		Fields:  map[string]interface{}{},
	}

	for k, v := range l.Fields {
		newWrapper.Fields[k] = v
	}

	return newWrapper
}

func (l *LogWrapper) WithError(err error) *LogWrapper {
	newWrapper := l.clone()
	newWrapper.Error = err
	return newWrapper
}

func (l *LogWrapper) WithField(key string, value interface{}) *LogWrapper {
	newWrapper := l.clone()
	newWrapper.Fields[key] = value
	return newWrapper
}

func (l *LogWrapper) log(level Level, format string, v ...interface{}) {
	l.LogFunc(LogPayload{
		Level:   level,
		Fields:  l.Fields,
		Error:   l.Error,
		Message: fmt.Sprintf(format, v...),
	})
}

func (l *LogWrapper) Tracef(format string, v ...interface{}) {
	l.log(TraceLevel, format, v...)
}

func (l *LogWrapper) Debugf(format string, v ...interface{}) {
	l.log(DebugLevel, format, v...)
}

func (l *LogWrapper) Errorf(format string, v ...interface{}) {
	l.log(ErrorLevel, format, v...)
}

func (l *LogWrapper) Warnf(format string, v ...interface{}) {
	l.log(WarnLevel, format, v...)
}

func (l *LogWrapper) Infof(format string, v ...interface{}) {
	l.log(InfoLevel, format, v...)
}
