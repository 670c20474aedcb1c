// Package log constructs the logrus entries shared by the coordinator's
// components so every log line carries a consistent set of fields.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the shared logger's verbosity.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// For returns a component-scoped entry, e.g. log.For("checkpoint").
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}
