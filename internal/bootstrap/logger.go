package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"github.com/Domenick1991/ticketbari/config"
	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from config.
func NewLogger(cfg config.LogConfig, component string) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger.WithField("service", component), nil
}
