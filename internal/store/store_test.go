package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/pkg/errno"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestJobStoreSaveGet(t *testing.T) {
	s := NewJobStore(newTestRedis(t))
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, errno.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	job := &model.Job{ID: "job-1", OwnerID: "u1", Status: model.JobStatusPending, CreatedAt: time.Now()}
	if err := s.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OwnerID != "u1" || got.Status != model.JobStatusPending {
		t.Errorf("unexpected job: %+v", got)
	}
}

func TestJobStoreUpdate(t *testing.T) {
	s := NewJobStore(newTestRedis(t))
	ctx := context.Background()
	s.Save(ctx, &model.Job{ID: "job-1", Status: model.JobStatusPending})

	updated, err := s.Update(ctx, "job-1", func(j *model.Job) error {
		j.Status = model.JobStatusAnalyzing
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != model.JobStatusAnalyzing {
		t.Errorf("status = %s", updated.Status)
	}

	_, err = s.Update(ctx, "job-1", func(j *model.Job) error {
		return errno.ErrInvalidTransition
	})
	if !errors.Is(err, errno.ErrInvalidTransition) {
		t.Fatalf("expected abort error, got %v", err)
	}
	got, _ := s.Get(ctx, "job-1")
	if got.Status != model.JobStatusAnalyzing {
		t.Errorf("aborted update was written: %s", got.Status)
	}

	if _, err := s.Update(ctx, "nope", func(j *model.Job) error { return nil }); !errors.Is(err, errno.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreConcurrentUpdates(t *testing.T) {
	s := NewJobStore(newTestRedis(t))
	ctx := context.Background()
	s.Save(ctx, &model.Job{ID: "job-1"})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(ctx, "job-1", func(j *model.Job) error {
				j.RetryCount++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "job-1")
	if got.RetryCount == 0 {
		t.Error("expected at least one update to land")
	}
}

func TestJobStoreShareAndViews(t *testing.T) {
	s := NewJobStore(newTestRedis(t))
	ctx := context.Background()
	s.Save(ctx, &model.Job{ID: "job-1", ShareID: "abc123"})

	ok, err := s.ReserveShareID(ctx, "abc123", "job-1")
	if err != nil || !ok {
		t.Fatalf("ReserveShareID = %v, %v", ok, err)
	}
	ok, _ = s.ReserveShareID(ctx, "abc123", "job-2")
	if ok {
		t.Fatal("share id reserved twice")
	}

	for i := 0; i < 3; i++ {
		if _, err := s.IncrementViews(ctx, "job-1"); err != nil {
			t.Fatalf("IncrementViews: %v", err)
		}
	}
	job, err := s.GetByShareID(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetByShareID: %v", err)
	}
	if job.ID != "job-1" || job.ViewCount != 3 {
		t.Errorf("job = %s views = %d", job.ID, job.ViewCount)
	}

	if _, err := s.GetByShareID(ctx, "zzz"); !errors.Is(err, errno.ErrShareNotFound) {
		t.Errorf("expected ErrShareNotFound, got %v", err)
	}
}

func TestCredentialStoreLimit(t *testing.T) {
	s := NewCredentialStore(newTestRedis(t))
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		cred := &model.APICredential{
			ID: fmt.Sprintf("k%d", i), OwnerID: "u1", KeyHash: fmt.Sprintf("h%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateWithLimit(ctx, cred, 3); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	extra := &model.APICredential{ID: "k3", OwnerID: "u1", KeyHash: "h3", CreatedAt: base}
	if err := s.CreateWithLimit(ctx, extra, 3); !errors.Is(err, errno.ErrCredentialLimitReached) {
		t.Fatalf("expected limit error, got %v", err)
	}

	_, err := s.Update(ctx, "k1", func(c *model.APICredential) error {
		now := time.Now()
		c.RevokedAt = &now
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.CreateWithLimit(ctx, extra, 3); err != nil {
		t.Fatalf("create after revoke: %v", err)
	}

	list, err := s.ListByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 4 || list[0].ID != "k2" {
		t.Errorf("unexpected list order: %d first=%s", len(list), list[0].ID)
	}

	found, err := s.FindByHash(ctx, "h3")
	if err != nil || found.ID != "k3" {
		t.Errorf("FindByHash = %v, %v", found, err)
	}
	if _, err := s.FindByHash(ctx, "nope"); !errors.Is(err, errno.ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
}
