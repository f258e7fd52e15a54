package logging

import (
	"github.com/sirupsen/logrus"
)

var _logger = logrus.StandardLogger().WithField("module", "Consent")

// Log returns the logger used by the consent provider. Entries carry a module field so they can be
// told apart from the HTTP access log.
func Log() *logrus.Entry {
	return _logger
}

// SetVerbosity parses a level name (trace, debug, info, warn, error) and applies it to the standard logger.
func SetVerbosity(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}
