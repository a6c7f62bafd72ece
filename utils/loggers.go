package utils

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

// InitLogger configures the process logger. Production emits JSON, every
// other environment a human-readable text format.
func InitLogger(env, level string) {
	logger.SetOutput(os.Stdout)
	if strings.EqualFold(env, "production") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
}

// Log exposes the structured logger for callers that attach fields.
func Log() *logrus.Logger {
	return logger
}

// Component returns a logger tagged with the component name.
func Component(name string) *logrus.Entry {
	return logger.WithField("component", name)
}

func LogInfo(message string) {
	logger.Info(message)
}

func LogWarning(message string) {
	logger.Warn(message)
}

func LogError(message string, err error) {
	if err != nil {
		logger.WithError(err).Error(message)
	} else {
		logger.Error(message)
	}
}

func LogFatal(message string, err error) {
	if err != nil {
		logger.WithError(err).Fatal(message)
	} else {
		logger.Fatal(message)
	}
}
