package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/internal/store"
	"github.com/prreel/api/pkg/errno"
)

// TaskTypePipeline is the asynq task that runs one job through the pipeline
const TaskTypePipeline = "pipeline:run"

var errNotPending = errors.New("job is not pending")

// PipelinePayload is the asynq task payload
type PipelinePayload struct {
	JobID string `json:"jobId"`
}

// PipelineWorker drives a job from pending to rendering (or complete when
// no renderer is configured). It is the only writer of pipeline stages.
type PipelineWorker struct {
	jobs        *store.JobStore
	metadata    *service.MetadataService
	screenshots *service.ScreenshotService
	narrative   *service.NarrativeService
	voice       *service.VoiceService
	storage     client.StorageClient
	renderer    client.RenderDispatcher
	notify      *service.Notifications
	callbackURL string
	now         func() time.Time
}

// PipelineDeps groups the collaborators of the pipeline. Renderer may be
// nil, in which case jobs complete right after audio synthesis.
type PipelineDeps struct {
	Jobs        *store.JobStore
	Metadata    *service.MetadataService
	Screenshots *service.ScreenshotService
	Narrative   *service.NarrativeService
	Voice       *service.VoiceService
	Storage     client.StorageClient
	Renderer    client.RenderDispatcher
	Notify      *service.Notifications
	PublicURL   string
}

func NewPipelineWorker(d PipelineDeps) *PipelineWorker {
	return &PipelineWorker{
		jobs:        d.Jobs,
		metadata:    d.Metadata,
		screenshots: d.Screenshots,
		narrative:   d.Narrative,
		voice:       d.Voice,
		storage:     d.Storage,
		renderer:    d.Renderer,
		notify:      d.Notify,
		callbackURL: d.PublicURL + "/webhooks/render",
		now:         time.Now,
	}
}

// ProcessTask is the asynq handler for TaskTypePipeline. Stage failures are
// recorded on the job and not returned, so asynq never retries them.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p PipelinePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.JobID == "" {
		return fmt.Errorf("invalid pipeline payload: %v: %w", err, asynq.SkipRetry)
	}
	w.Run(ctx, p.JobID)
	return nil
}

// Run executes every stage in order and persists state after each one.
func (w *PipelineWorker) Run(ctx context.Context, jobID string) {
	log := logger.Job(jobID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("pipeline panicked")
			w.fail(ctx, jobID, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	job, err := w.update(ctx, jobID, func(j *model.Job) error {
		if j.Status != model.JobStatusPending {
			return errNotPending
		}
		now := w.now()
		j.Status = model.JobStatusAnalyzing
		j.StartedAt = &now
		j.Progress = 5
		j.CurrentStep = "Fetching change requests"
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotPending) {
			log.Info("job no longer pending, skipping pipeline run")
			return
		}
		log.WithError(err).Error("failed to start pipeline")
		return
	}

	log.WithField("stage", "analyzing").Info("pipeline started")
	if err := w.run(ctx, job, log); err != nil {
		w.fail(ctx, jobID, err)
	}
}

func (w *PipelineWorker) run(ctx context.Context, job *model.Job, log *logrus.Entry) error {
	details, err := w.metadata.FetchAll(ctx, orderedRefs(job.References))
	if err != nil {
		return err
	}

	job, err = w.update(ctx, job.ID, func(j *model.Job) error {
		applyDetails(j, details)
		j.Progress = 25
		j.CurrentStep = "Looking for screenshots"
		return nil
	})
	if err != nil {
		return err
	}

	shots := w.screenshots.Collect(ctx, job.ID, details)
	job, err = w.update(ctx, job.ID, func(j *model.Job) error {
		j.Screenshots = shots
		j.Progress = 35
		j.CurrentStep = "Writing the story"
		return nil
	})
	if err != nil {
		return err
	}
	log.WithField("screenshots", len(shots)).Debug("screenshots collected")

	story, err := w.narrative.Generate(ctx, details)
	if err != nil {
		return err
	}
	job, err = w.update(ctx, job.ID, func(j *model.Job) error {
		j.Summary = story.Summary
		j.Script = story.Script
		j.ChangeType = story.ChangeType
		if j.IsMulti() {
			j.Title = story.UnifiedTitle
		}
		j.Status = model.JobStatusGeneratingAudio
		j.Progress = 50
		j.CurrentStep = "Recording the voice-over"
		return nil
	})
	if err != nil {
		return err
	}
	log.WithField("stage", "generating_audio").Info("narrative ready")

	voice, err := w.voice.Synthesize(ctx, job.Script)
	if err != nil {
		return err
	}
	audioURL, err := w.storage.Upload(ctx, fmt.Sprintf("audio/%s.mp3", job.ID), bytes.NewReader(voice.Audio), "audio/mpeg")
	if err != nil {
		return errno.ErrVoiceSynthesis.With("failed to store audio: %v", err)
	}

	if w.renderer == nil {
		job, err = w.update(ctx, job.ID, func(j *model.Job) error {
			applyVoice(j, audioURL, voice)
			now := w.now()
			j.Status = model.JobStatusComplete
			j.Progress = 100
			j.CurrentStep = "Complete"
			j.CompletedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("no renderer configured, job complete")
		w.notify.Terminal(job)
		return nil
	}

	job, err = w.update(ctx, job.ID, func(j *model.Job) error {
		applyVoice(j, audioURL, voice)
		j.Status = model.JobStatusRendering
		j.Progress = 75
		j.CurrentStep = "Rendering video"
		return nil
	})
	if err != nil {
		return err
	}

	if err := w.renderer.Dispatch(ctx, w.renderRequest(job, details)); err != nil {
		return errno.ErrRenderDispatch.Wrap(err)
	}
	log.WithField("stage", "rendering").Info("render dispatched")
	return nil
}

// fail records err verbatim. A job that already reached a terminal state is
// left alone, so a render callback that won the race is never overwritten.
func (w *PipelineWorker) fail(ctx context.Context, jobID string, cause error) {
	log := logger.Job(jobID).WithError(cause)

	msg := cause.Error()
	job, err := w.jobs.Update(ctx, jobID, func(j *model.Job) error {
		if j.Status.IsTerminal() {
			return errNotPending
		}
		now := w.now()
		j.Status = model.JobStatusFailed
		j.ErrorMessage = &msg
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNotPending) {
			log.WithField("update_error", err).Error("failed to record job failure")
		}
		return
	}

	if e, ok := errno.From(cause); ok {
		log = log.WithField("code", e.Code)
	}
	log.Warn("pipeline failed")
	w.notify.Terminal(job)
}

func (w *PipelineWorker) update(ctx context.Context, jobID string, fn func(*model.Job) error) (*model.Job, error) {
	job, err := w.jobs.Update(ctx, jobID, fn)
	if err != nil {
		return nil, err
	}
	w.notify.Progress(job)
	return job, nil
}

func (w *PipelineWorker) renderRequest(job *model.Job, details []*model.ChangeRequestDetails) *client.RenderRequest {
	req := &client.RenderRequest{
		JobID:         job.ID,
		Title:         job.Title,
		RepoOwner:     job.RepoOwner,
		RepoName:      job.RepoName,
		Author:        job.PRAuthor,
		AuthorAvatar:  job.PRAuthorAvatar,
		ChangeType:    string(job.ChangeType),
		Summary:       job.Summary,
		Script:        job.Script,
		FilesChanged:  job.TotalFilesChanged,
		Additions:     job.TotalAdditions,
		Deletions:     job.TotalDeletions,
		AudioURL:      job.AudioURL,
		AudioDuration: job.AudioDurationSeconds,
		CallbackURL:   w.callbackURL,
	}
	if job.ScreenRecording != nil {
		req.ScreenRecordingURL = job.ScreenRecording.URL
	}

	perItem := service.FileBudget
	if len(details) > 1 {
		perItem = service.FilesPerItem(len(details))
	}
	for _, d := range details {
		req.Items = append(req.Items, client.RenderItem{
			Number:       d.Ref.Number,
			Title:        d.Title,
			Author:       d.Author,
			AuthorAvatar: d.AuthorAvatar,
			Additions:    d.Additions,
			Deletions:    d.Deletions,
			FilesChanged: d.ChangedFiles,
		})
		for i, f := range d.Files {
			if i == perItem {
				break
			}
			req.Files = append(req.Files, client.RenderFile{
				Filename:  f.Filename,
				Status:    f.Status,
				Additions: f.Additions,
				Deletions: f.Deletions,
			})
		}
	}
	for _, s := range job.Screenshots {
		req.Screenshots = append(req.Screenshots, client.RenderScreenshot{
			URL:     s.URL,
			AltText: s.AltText,
			Source:  string(s.Source),
		})
	}
	return req
}

func orderedRefs(refs []model.ChangeRequestRef) []model.Reference {
	sorted := make([]model.ChangeRequestRef, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DisplayOrder < sorted[j].DisplayOrder })

	out := make([]model.Reference, len(sorted))
	for i, r := range sorted {
		out[i] = r.Reference
	}
	return out
}

// applyDetails caches fetched metadata on each linked reference, matched by
// number, and recomputes the job metrics.
func applyDetails(j *model.Job, details []*model.ChangeRequestDetails) {
	byNumber := make(map[int]*model.ChangeRequestDetails, len(details))
	for _, d := range details {
		byNumber[d.Ref.Number] = d
	}

	sort.SliceStable(j.References, func(a, b int) bool {
		return j.References[a].DisplayOrder < j.References[b].DisplayOrder
	})
	for i := range j.References {
		d, ok := byNumber[j.References[i].Number]
		if !ok {
			continue
		}
		r := &j.References[i]
		r.Title = d.Title
		r.Body = d.Body
		r.Author = d.Author
		r.AuthorAvatar = d.AuthorAvatar
		r.FilesChanged = d.ChangedFiles
		r.Additions = d.Additions
		r.Deletions = d.Deletions
	}

	j.ApplyMetrics()
	if j.Title == "" || !j.IsMulti() {
		j.Title = j.PRTitle
	}
}

func applyVoice(j *model.Job, audioURL string, v *service.Voiceover) {
	j.AudioURL = audioURL
	j.AudioDurationSeconds = v.DurationSeconds
	j.AudioDurationApprox = v.Approximate
}
