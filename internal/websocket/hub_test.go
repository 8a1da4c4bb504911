package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prreel/api/internal/model"
)

func TestHubDeliversToJobSubscribers(t *testing.T) {
	h := NewHub()
	go h.Run()

	sub := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	other := &Client{JobID: "job-2", Send: make(chan []byte, 4)}
	h.Register(sub)
	h.Register(other)

	h.JobProgress(&model.Job{ID: "job-1", Status: model.JobStatusAnalyzing, Progress: 10, CurrentStep: "Fetching"})

	select {
	case raw := <-sub.Send:
		var msg model.WSProgressMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != model.WSMessageTypeProgress || msg.Status != model.JobStatusAnalyzing {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	select {
	case <-other.Send:
		t.Error("message leaked to another job")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubFailedMessage(t *testing.T) {
	h := NewHub()
	go h.Run()

	sub := &Client{JobID: "job-1", Send: make(chan []byte, 1)}
	h.Register(sub)

	errMsg := "boom"
	h.JobFailed(&model.Job{ID: "job-1", ErrorMessage: &errMsg})

	select {
	case raw := <-sub.Send:
		var msg model.WSErrorMessage
		json.Unmarshal(raw, &msg)
		if msg.Error.Message != "boom" {
			t.Errorf("error message = %q", msg.Error.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	h.Unregister(sub)
	if _, ok := <-sub.Send; ok {
		t.Error("send channel should be closed after unregister")
	}
}
