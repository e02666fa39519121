package logs

import (
	"github.com/sirupsen/logrus"
)

type Options struct {
	Level  string
	Format string // "text" or "json"
}

// Init builds the shared logger. Unknown levels fall back to info rather
// than failing startup.
func Init(opts Options) *logrus.Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if opts.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return l
}
