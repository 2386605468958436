package util

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.WarnLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLogLevel sets the logging level
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput sets the log output destination
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// WithNetdef returns a logger carrying the definition id being processed
func WithNetdef(id string) *logrus.Entry {
	return Logger.WithField("netdef", id)
}

// WithRenderer returns a logger carrying the renderer backend name
func WithRenderer(backend string) *logrus.Entry {
	return Logger.WithField("renderer", backend)
}

// WithFile returns a logger carrying a generated or parsed file path
func WithFile(path string) *logrus.Entry {
	return Logger.WithField("file", path)
}
