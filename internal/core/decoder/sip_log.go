package decoder

import (
	gosiplog "github.com/ghettovoice/gosip/log"
	"github.com/sirupsen/logrus"

	"firestige.xyz/pktkit/internal/log"
)

// sipLogger routes gosip's parser logging into the process logger. A nil
// entry follows whatever logger log.Init installed last, with fields
// added on top.
type sipLogger struct {
	entry  *logrus.Entry
	fields logrus.Fields
	prefix string
}

func newSipLogger(entry *logrus.Entry) *sipLogger {
	return &sipLogger{entry: entry}
}

func (l *sipLogger) e() *logrus.Entry {
	entry := l.entry
	if entry == nil {
		entry = log.Entry(log.GetLogger())
	}
	if len(l.fields) > 0 {
		entry = entry.WithFields(l.fields)
	}
	return entry
}

func (l *sipLogger) with(fields map[string]interface{}) *sipLogger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &sipLogger{entry: l.entry, fields: merged, prefix: l.prefix}
}

func (l *sipLogger) Fields() gosiplog.Fields {
	return gosiplog.Fields(l.e().Data)
}

func (l *sipLogger) WithFields(fields map[string]interface{}) gosiplog.Logger {
	return l.with(fields)
}

func (l *sipLogger) Prefix() string {
	return l.prefix
}

func (l *sipLogger) WithPrefix(prefix string) gosiplog.Logger {
	next := l.with(map[string]interface{}{"prefix": prefix})
	next.prefix = prefix
	return next
}

func (l *sipLogger) Print(args ...interface{})                 { l.e().Print(args...) }
func (l *sipLogger) Printf(format string, args ...interface{}) { l.e().Printf(format, args...) }
func (l *sipLogger) Trace(args ...interface{})                 { l.e().Trace(args...) }
func (l *sipLogger) Tracef(format string, args ...interface{}) { l.e().Tracef(format, args...) }
func (l *sipLogger) Debug(args ...interface{})                 { l.e().Debug(args...) }
func (l *sipLogger) Debugf(format string, args ...interface{}) { l.e().Debugf(format, args...) }
func (l *sipLogger) Info(args ...interface{})                  { l.e().Info(args...) }
func (l *sipLogger) Infof(format string, args ...interface{})  { l.e().Infof(format, args...) }
func (l *sipLogger) Warn(args ...interface{})                  { l.e().Warn(args...) }
func (l *sipLogger) Warnf(format string, args ...interface{})  { l.e().Warnf(format, args...) }
func (l *sipLogger) Error(args ...interface{})                 { l.e().Error(args...) }
func (l *sipLogger) Errorf(format string, args ...interface{}) { l.e().Errorf(format, args...) }
func (l *sipLogger) Fatal(args ...interface{})                 { l.e().Fatal(args...) }
func (l *sipLogger) Fatalf(format string, args ...interface{}) { l.e().Fatalf(format, args...) }
func (l *sipLogger) Panic(args ...interface{})                 { l.e().Panic(args...) }
func (l *sipLogger) Panicf(format string, args ...interface{}) { l.e().Panicf(format, args...) }

// SetLevel is a no-op; the process logger owns the level.
func (l *sipLogger) SetLevel(uint32) {}
