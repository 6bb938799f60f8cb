package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

const serviceName = "rescue-dispatch"

// New создает JSON-логгер. Некорректный уровень заменяется на info.
func New(logLevel string) *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// WithService добавляет имя сервиса ко всем записям
func WithService(log *logrus.Logger) *logrus.Entry {
	return log.WithField("service_name", serviceName)
}
