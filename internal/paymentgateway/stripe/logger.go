package stripe

import (
	stripeapi "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

type leveledLogger struct {
	log *zap.SugaredLogger
}

var _ stripeapi.LeveledLoggerInterface = (*leveledLogger)(nil)

// newLeveledLogger routes stripe-go's own logging into zap at debug level and
// above. Request bodies are never logged by stripe-go at these levels.
func newLeveledLogger(log *zap.Logger) *leveledLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &leveledLogger{log: log.Named("stripe-go").Sugar()}
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) { l.log.Debugf(format, v...) }
func (l *leveledLogger) Infof(format string, v ...interface{})  { l.log.Debugf(format, v...) }
func (l *leveledLogger) Warnf(format string, v ...interface{})  { l.log.Warnf(format, v...) }
func (l *leveledLogger) Errorf(format string, v ...interface{}) { l.log.Warnf(format, v...) }
