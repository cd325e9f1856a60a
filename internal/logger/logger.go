package logger

import (
	"os"

	"github.com/sirupsen/logrus"

	"medication-reminders/internal/config"
)

// New builds a configured logger. Callers own the instance and inject it;
// there is no package-level logger.
func New(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.Environment {
	case "production", "staging":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if err != nil {
		log.Warnf("invalid log level %q, defaulting to info", cfg.LogLevel)
	}
	return log
}
