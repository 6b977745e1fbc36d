package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// SlowThreshold is the duration above which Track logs at warning level.
var SlowThreshold = 500 * time.Millisecond

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(logrus.WarnLevel)
}

// Setup configures the standard logger. An empty path logs to stderr only;
// otherwise entries are also appended to the file at path. The returned
// closer releases the log file and is never nil.
func Setup(level, path string) (io.Closer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nopCloser{}, err
	}
	logrus.SetLevel(lvl)

	if path == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nopCloser{}, err
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	logrus.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

// Track starts timing an operation. Call the returned func when it is done.
func Track(entry *logrus.Entry, msg string) func() {
	start := time.Now()
	return func() {
		dur := time.Since(start)
		e := entry.WithField("duration", dur.String())
		if dur > SlowThreshold {
			e.Warnf("%s completed (SLOW)", msg)
		} else {
			e.Debugf("%s completed", msg)
		}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
