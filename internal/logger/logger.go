package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger.
var Log = logrus.New()

// Init configures Log for the given environment and level. Development gets
// the human-readable text formatter, everything else emits JSON.
func Init(env, level string) {
	Log.SetOutput(os.Stdout)

	if env == "development" {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		Log.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}

// Job returns an entry scoped to a single job.
func Job(jobID string) *logrus.Entry {
	return Log.WithField("job_id", jobID)
}
