package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is usable before initLogger runs so that
// tests exercising helpers in this package do not need any setup.
var Log = logrus.NewEntry(logrus.StandardLogger())

func initLogger(level string) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	Log = logrus.NewEntry(logger)
	if err != nil {
		Log.Warnf("Unknown log level %q, using info", level)
	}
}

// logObserver reports extraction diagnostics through Log.
type logObserver struct {
	entry *logrus.Entry
}

func newLogObserver() logObserver {
	return logObserver{entry: Log.WithField("component", "extract")}
}

func (o logObserver) Strategy(component, strategy string, found int) {
	if found == 0 {
		return
	}
	o.entry.WithFields(logrus.Fields{
		"extractor": component,
		"strategy":  strategy,
		"found":     found,
	}).Debug("strategy matched")
}

func (o logObserver) Recovered(component string, err error) {
	o.entry.WithField("extractor", component).Warnf("Extraction aborted on malformed input: %s", err)
}
