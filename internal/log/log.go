// Package log provides the process logger: a logrus-backed Logger with a
// pattern formatter and stdout, rotating-file and Loki appenders.
package log

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger
	output *MultiWriter
)

// GetLogger returns the process logger. Before Init it logs at info level
// to stdout with the default pattern.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger, output = newLogger(&LoggerConfig{})
	}
	return logger
}

// Init replaces the process logger. Appenders opened by a previous Init are closed.
func Init(cfg *LoggerConfig) {
	if cfg == nil {
		cfg = &LoggerConfig{}
	}
	l, w := newLogger(cfg)

	mu.Lock()
	prev := output
	logger, output = l, w
	mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
}

func newLogger(cfg *LoggerConfig) (Logger, *MultiWriter) {
	c := *cfg
	c.applyDefaults()

	l := logrus.New()
	l.SetFormatter(&formatter{
		pattern: c.Pattern,
		time:    c.Time,
	})
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	w := NewMultiWriter().Add(os.Stdout)
	if c.File.Enabled() {
		w.AddFileAppender(c.File)
	}
	if c.Loki.Enabled() {
		w.AddLokiAppender(c.Loki)
	}
	l.SetOutput(w)

	return &logrusAdapter{entry: logrus.NewEntry(l)}, w
}
