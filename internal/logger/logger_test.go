package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitLevels(t *testing.T) {
	Init("production", "debug")
	if Log.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %s", Log.GetLevel())
	}

	Init("production", "nonsense")
	if Log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected fallback to info, got %s", Log.GetLevel())
	}
}

func TestJobEntryCarriesJobID(t *testing.T) {
	Init("production", "info")
	var buf bytes.Buffer
	Log.SetOutput(&buf)

	Job("job-42").Info("stage started")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line: %v (%s)", err, buf.String())
	}
	if line["job_id"] != "job-42" {
		t.Errorf("expected job_id field, got %v", line["job_id"])
	}
	if line["msg"] != "stage started" {
		t.Errorf("unexpected msg %v", line["msg"])
	}
}
