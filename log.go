package orm

import (
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/tinywasm/orm/v2")

var logg = newLogger(logrus.ErrorLevel)

// DefaultLogger returns the package logger used when no WithLogger option is given.
func DefaultLogger() *logrus.Logger {
	return logg
}

func newLogger(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	l.SetOutput(os.Stdout)
	return l
}

func (em *EntityManager) entry() *logrus.Entry {
	return em.log.WithField("context", em.id.String())
}

func (em *EntityManager) logStatement(plan Plan) {
	if !em.cfg.Debug {
		return
	}
	em.entry().WithFields(logrus.Fields{
		"query":  plan.Query,
		"params": plan.Args,
	}).Debug("orm statement")
}

func (em *EntityManager) logError(funcName string, data any, err error) {
	fields := logrus.Fields{
		"module":   "orm",
		"funcName": funcName,
	}
	if data != nil {
		fields["data"] = data
	}
	em.entry().WithFields(fields).Error(err.Error())
}
