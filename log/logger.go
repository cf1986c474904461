package log

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/vitalpath/billing-app/conf"
)

var (
	API         logrus.FieldLogger
	EDI         logrus.FieldLogger
	Eligibility logrus.FieldLogger
	Request     logrus.FieldLogger

	Worker logrus.FieldLogger
)

func init() {
	API = Logger(logrus.New(), conf.GetEnv("BILLING_ERROR_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))
	EDI = Logger(logrus.New(), conf.GetEnv("BILLING_EDI_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))
	Eligibility = Logger(logrus.New(), conf.GetEnv("BILLING_ELIGIBILITY_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))
	Request = Logger(logrus.New(), conf.GetEnv("BILLING_REQUEST_LOG"),
		"api", conf.GetEnv("ENVIRONMENT"))

	Worker = Logger(logrus.New(), conf.GetEnv("BILLING_WORKER_ERROR_LOG"),
		"worker", conf.GetEnv("ENVIRONMENT"))
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment})
}

type ctxLoggerKeyType string

const ctxLoggerKey ctxLoggerKeyType = "ctxLogger"

// NewStructuredLoggerEntry stores the given logger in the context so request
// and job scoped fields can accumulate on it.
func NewStructuredLoggerEntry(logger logrus.FieldLogger, ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, logger)
}

// GetCtxLogger returns the logger stored in the context, or the API logger
// when the context carries none.
func GetCtxLogger(ctx context.Context) logrus.FieldLogger {
	if logger, ok := ctx.Value(ctxLoggerKey).(logrus.FieldLogger); ok {
		return logger
	}
	return API
}

// SetCtxLogger adds a field to the context logger and stores the updated
// logger back in the context.
func SetCtxLogger(ctx context.Context, key string, value interface{}) (context.Context, logrus.FieldLogger) {
	logger := GetCtxLogger(ctx).WithField(key, value)
	return context.WithValue(ctx, ctxLoggerKey, logger), logger
}
