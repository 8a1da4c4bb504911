package service

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/config"
	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/reference"
	"github.com/prreel/api/internal/store"
	"github.com/prreel/api/pkg/errno"
)

const (
	shareIDLength       = 10
	shareIDAttempts     = 5
	defaultRecordingExt = ".webm"
)

// PipelineDispatcher submits a job to the background pipeline and returns
// without waiting for any stage.
type PipelineDispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// JobService owns job creation and every externally triggered transition:
// retry and render completion.
type JobService struct {
	jobs       *store.JobStore
	dispatcher PipelineDispatcher
	storage    client.StorageClient
	notify     *Notifications
	publicURL  string
	recording  config.RecordingConfig
	now        func() time.Time
}

func NewJobService(
	jobs *store.JobStore,
	dispatcher PipelineDispatcher,
	storage client.StorageClient,
	notify *Notifications,
	publicURL string,
	recording config.RecordingConfig,
) *JobService {
	return &JobService{
		jobs:       jobs,
		dispatcher: dispatcher,
		storage:    storage,
		notify:     notify,
		publicURL:  publicURL,
		recording:  recording,
		now:        time.Now,
	}
}

// CreateParams describes a new submission
type CreateParams struct {
	OwnerID    string
	Origin     model.JobOrigin
	APIKeyID   string
	URLs       []string
	WebhookURL string
}

// Create validates the references, persists a pending job and dispatches
// the pipeline. Reference errors are returned before anything is stored.
func (s *JobService) Create(ctx context.Context, p CreateParams) (*model.Job, error) {
	refs, err := reference.Resolve(p.URLs)
	if err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:         uuid.New().String(),
		OwnerID:    p.OwnerID,
		Origin:     p.Origin,
		APIKeyID:   p.APIKeyID,
		Status:     model.JobStatusPending,
		WebhookURL: p.WebhookURL,
		CreatedAt:  s.now(),
	}
	for i, ref := range refs {
		job.References = append(job.References, model.ChangeRequestRef{Reference: ref, DisplayOrder: i})
	}
	job.ApplyMetrics()

	shareID, err := s.reserveShareID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	job.ShareID = shareID

	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.dispatch(ctx, job.ID); err != nil {
		return nil, err
	}

	logger.Job(job.ID).WithFields(map[string]interface{}{
		"owner":    job.OwnerID,
		"origin":   job.Origin,
		"pr_count": job.PRCount,
	}).Info("job created")
	return job, nil
}

// Get returns the job if ownerID owns it. Other owners get ErrJobNotFound.
func (s *JobService) Get(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, errno.ErrJobNotFound
	}
	return job, nil
}

// Retry resets a failed or stuck rendering job to pending and runs the
// pipeline again from the top. The status check and reset are one atomic
// update, so concurrent retries cannot both pass.
func (s *JobService) Retry(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	job, err := s.jobs.Update(ctx, jobID, func(j *model.Job) error {
		if j.OwnerID != ownerID {
			return errno.ErrJobNotFound
		}
		if !j.Status.Retryable() {
			return errno.ErrRetryNotAllowed.With("status is %s", j.Status)
		}
		j.Status = model.JobStatusPending
		j.ErrorMessage = nil
		j.Progress = 0
		j.CurrentStep = ""
		j.StartedAt = nil
		j.CompletedAt = nil
		j.ClearOutputs()
		j.RetryCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Progress(job)
	if err := s.dispatch(ctx, job.ID); err != nil {
		return nil, err
	}

	logger.Job(job.ID).WithField("retry_count", job.RetryCount).Info("job retried")
	return job, nil
}

// CompleteRender applies the render callback. It is the only way out of
// the rendering state.
func (s *JobService) CompleteRender(ctx context.Context, p *model.RenderWebhookPayload) (*model.Job, error) {
	job, err := s.jobs.Update(ctx, p.JobID, func(j *model.Job) error {
		if j.Status != model.JobStatusRendering {
			return errno.ErrInvalidTransition.With("job is %s, not rendering", j.Status)
		}

		now := s.now()
		j.CompletedAt = &now
		j.Progress = 100

		if p.Error != nil && *p.Error != "" {
			msg := *p.Error
			j.Status = model.JobStatusFailed
			j.ErrorMessage = &msg
			j.CurrentStep = "Render failed"
			return nil
		}

		j.Status = model.JobStatusComplete
		j.CurrentStep = "Complete"
		if p.VideoURL != nil {
			j.VideoURL = *p.VideoURL
		}
		if p.ThumbnailURL != nil {
			j.ThumbnailURL = *p.ThumbnailURL
		}
		if p.DurationSeconds != nil {
			j.DurationSeconds = *p.DurationSeconds
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Job(job.ID).WithField("status", job.Status).Info("render callback applied")
	s.notify.Terminal(job)
	return job, nil
}

// ViewShare returns the public view behind a share link. Views are counted
// only for complete jobs.
func (s *JobService) ViewShare(ctx context.Context, shareID string) (*model.ShareView, error) {
	job, err := s.jobs.GetByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}

	view := &model.ShareView{
		ShareID:        job.ShareID,
		Status:         job.Status,
		Title:          job.Title,
		Summary:        job.Summary,
		ChangeType:     job.ChangeType,
		RepoOwner:      job.RepoOwner,
		RepoName:       job.RepoName,
		PRCount:        job.PRCount,
		TotalAdditions: job.TotalAdditions,
		TotalDeletions: job.TotalDeletions,
		ViewCount:      job.ViewCount,
	}
	if job.Status != model.JobStatusComplete {
		return view, nil
	}

	views, err := s.jobs.IncrementViews(ctx, job.ID)
	if err != nil {
		logger.Job(job.ID).WithError(err).Warn("failed to count share view")
	} else {
		view.ViewCount = views
	}
	view.VideoURL = job.VideoURL
	view.ThumbnailURL = job.ThumbnailURL
	view.DurationSeconds = job.DurationSeconds
	view.Screenshots = job.Screenshots
	view.CompletedAt = job.CompletedAt
	return view, nil
}

// RecordingUpload is a user-supplied screen recording
type RecordingUpload struct {
	Body        io.Reader
	Filename    string
	ContentType string
	SizeBytes   int64
	DurationMs  int64
}

// UploadRecording stores the recording and attaches it to the job,
// deleting the blob of any recording it replaces.
func (s *JobService) UploadRecording(ctx context.Context, ownerID, jobID string, up RecordingUpload) (*model.ScreenRecording, error) {
	if s.recording.MaxBytes > 0 && up.SizeBytes > s.recording.MaxBytes {
		return nil, errno.ErrRecordingTooLarge.With("%d bytes exceeds %d", up.SizeBytes, s.recording.MaxBytes)
	}
	if _, err := s.Get(ctx, ownerID, jobID); err != nil {
		return nil, err
	}

	duration := up.DurationMs
	if duration < 0 {
		duration = 0
	}
	if s.recording.MaxDurationMs > 0 && duration > s.recording.MaxDurationMs {
		duration = s.recording.MaxDurationMs
	}

	ext := strings.ToLower(path.Ext(up.Filename))
	if ext == "" {
		ext = defaultRecordingExt
	}
	key := fmt.Sprintf("recordings/%s/%s%s", jobID, uuid.New().String(), ext)

	url, err := s.storage.Upload(ctx, key, up.Body, up.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store recording: %w", err)
	}

	rec := &model.ScreenRecording{
		StorageKey:  key,
		URL:         url,
		ContentType: up.ContentType,
		DurationMs:  duration,
		SizeBytes:   up.SizeBytes,
		UploadedAt:  s.now(),
	}

	var prior *model.ScreenRecording
	_, err = s.jobs.Update(ctx, jobID, func(j *model.Job) error {
		prior = j.ScreenRecording
		j.ScreenRecording = rec
		return nil
	})
	if err != nil {
		s.deleteBlob(ctx, jobID, key)
		return nil, err
	}

	if prior != nil {
		s.deleteBlob(ctx, jobID, prior.StorageKey)
	}
	return rec, nil
}

// DeleteRecording detaches the recording and deletes its blob
func (s *JobService) DeleteRecording(ctx context.Context, ownerID, jobID string) error {
	var prior *model.ScreenRecording
	_, err := s.jobs.Update(ctx, jobID, func(j *model.Job) error {
		if j.OwnerID != ownerID {
			return errno.ErrJobNotFound
		}
		if j.ScreenRecording == nil {
			return errno.ErrRecordingNotFound
		}
		prior = j.ScreenRecording
		j.ScreenRecording = nil
		return nil
	})
	if err != nil {
		return err
	}
	s.deleteBlob(ctx, jobID, prior.StorageKey)
	return nil
}

func (s *JobService) ShareURL(job *model.Job) string {
	return ShareURL(s.publicURL, job.ShareID)
}

func (s *JobService) StatusURL(job *model.Job) string {
	return StatusURL(s.publicURL, job.ID)
}

func (s *JobService) deleteBlob(ctx context.Context, jobID, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		logger.Job(jobID).WithError(err).WithField("key", key).Warn("failed to delete recording blob")
	}
}

// dispatch hands the job to the pipeline. If that fails the job is marked
// failed so it can be retried.
func (s *JobService) dispatch(ctx context.Context, jobID string) error {
	err := s.dispatcher.Dispatch(ctx, jobID)
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf("failed to enqueue pipeline: %v", err)
	if _, uerr := s.jobs.Update(ctx, jobID, func(j *model.Job) error {
		j.Status = model.JobStatusFailed
		j.ErrorMessage = &msg
		return nil
	}); uerr != nil {
		logger.Job(jobID).WithError(uerr).Error("failed to record dispatch failure")
	}
	return errno.ErrDispatchFailure.Wrap(err)
}

func (s *JobService) reserveShareID(ctx context.Context, jobID string) (string, error) {
	for i := 0; i < shareIDAttempts; i++ {
		id := NewShareID()
		ok, err := s.jobs.ReserveShareID(ctx, id, jobID)
		if err != nil {
			return "", fmt.Errorf("failed to reserve share id: %w", err)
		}
		if ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique share id")
}

// NewShareID returns a 10 character lowercase base36 id
func NewShareID() string {
	u := uuid.New()
	s := new(big.Int).SetBytes(u[:]).Text(36)
	if len(s) < shareIDLength {
		s = strings.Repeat("0", shareIDLength-len(s)) + s
	}
	return s[len(s)-shareIDLength:]
}
