package client

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStoreUploadAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8000/media/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	url, err := store.Upload(context.Background(), "audio/job-1.mp3", strings.NewReader("ID3"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "http://localhost:8000/media/audio/job-1.mp3" {
		t.Errorf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "audio", "job-1.mp3"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "ID3" {
		t.Errorf("content = %q", data)
	}

	if err := store.Delete(context.Background(), "audio/job-1.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// deleting twice is not an error
	if err := store.Delete(context.Background(), "audio/job-1.mp3"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "a/b.png", want: "a/b.png"},
		{key: "/a//b.png", want: "a/b.png"},
		{key: "a\\b.png", want: "a/b.png"},
		{key: "../etc/passwd", wantErr: true},
		{key: "a/../../x", wantErr: true},
		{key: "  ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := sanitizeKey(tt.key)
		if tt.wantErr {
			if err == nil {
				t.Errorf("sanitizeKey(%q) expected error, got %q", tt.key, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("sanitizeKey(%q) = %q, %v; want %q", tt.key, got, err, tt.want)
		}
	}
}
