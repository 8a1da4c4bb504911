package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/model"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

// fakeSource serves canned change requests keyed by number
type fakeSource struct {
	prs      map[int]*client.ChangeRequest
	files    map[int][]model.FileChange
	commits  map[int][]model.Commit
	comments map[int][]model.Comment
	failOn   int
	panicOn  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		prs:      map[int]*client.ChangeRequest{},
		files:    map[int][]model.FileChange{},
		commits:  map[int][]model.Commit{},
		comments: map[int][]model.Comment{},
	}
}

func (f *fakeSource) GetChangeRequest(_ context.Context, ref model.Reference) (*client.ChangeRequest, error) {
	if ref.Number == f.failOn {
		return nil, errors.New("github: 502 bad gateway")
	}
	pr, ok := f.prs[ref.Number]
	if !ok {
		return nil, fmt.Errorf("pull request %d not found", ref.Number)
	}
	return pr, nil
}

func (f *fakeSource) ListFiles(_ context.Context, ref model.Reference) ([]model.FileChange, error) {
	if ref.Number == f.panicOn {
		panic("nil files page")
	}
	out := make([]model.FileChange, len(f.files[ref.Number]))
	copy(out, f.files[ref.Number])
	return out, nil
}

func (f *fakeSource) ListCommits(_ context.Context, ref model.Reference) ([]model.Commit, error) {
	return f.commits[ref.Number], nil
}

func (f *fakeSource) ListComments(_ context.Context, ref model.Reference) ([]model.Comment, error) {
	return f.comments[ref.Number], nil
}

type fakeChat struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeChat) ChatCompletion(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

type fakeSpeech struct {
	audio []byte
	err   error
}

func (f *fakeSpeech) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, f.err
}

type fakeCapturer struct {
	mu    sync.Mutex
	calls []*client.CaptureRequest
	resp  *client.CaptureResponse
	err   error
}

func (f *fakeCapturer) Capture(_ context.Context, req *client.CaptureRequest) (*client.CaptureResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, jobID)
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func newTestStorage(t *testing.T) *client.FileStore {
	t.Helper()
	return newFileStoreAt(t, t.TempDir())
}

func newFileStoreAt(t *testing.T, dir string) *client.FileStore {
	t.Helper()
	fs, err := client.NewFileStore(dir, "http://localhost:8000/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return fs
}
