package model

import "time"

// MaxScreenshots caps the screenshot assets attached to one job.
const MaxScreenshots = 6

// Job is one video generation request spanning one or more change requests.
type Job struct {
	ID       string    `json:"id"`
	OwnerID  string    `json:"ownerId"`
	Origin   JobOrigin `json:"origin"`
	APIKeyID string    `json:"apiKeyId,omitempty"`

	// Display title: the primary change request's title, or the unified
	// title when several change requests are combined.
	Title string `json:"title,omitempty"`

	// Primary change request
	RepoOwner      string `json:"repoOwner"`
	RepoName       string `json:"repoName"`
	PRNumber       int    `json:"prNumber"`
	PRURL          string `json:"prUrl"`
	PRTitle        string `json:"prTitle,omitempty"`
	PRBody         string `json:"prBody,omitempty"`
	PRAuthor       string `json:"prAuthor,omitempty"`
	PRAuthorAvatar string `json:"prAuthorAvatar,omitempty"`
	FilesChanged   int    `json:"filesChanged"`
	Additions      int    `json:"additions"`
	Deletions      int    `json:"deletions"`

	// Across all linked change requests
	PRCount           int `json:"prCount"`
	TotalFilesChanged int `json:"totalFilesChanged"`
	TotalAdditions    int `json:"totalAdditions"`
	TotalDeletions    int `json:"totalDeletions"`

	Summary    string     `json:"summary,omitempty"`
	Script     string     `json:"script,omitempty"`
	ChangeType ChangeType `json:"changeType,omitempty"`

	AudioURL             string           `json:"audioUrl,omitempty"`
	AudioDurationSeconds float64          `json:"audioDurationSeconds,omitempty"`
	AudioDurationApprox  bool             `json:"audioDurationApprox,omitempty"`
	VideoURL             string           `json:"videoUrl,omitempty"`
	ThumbnailURL         string           `json:"thumbnailUrl,omitempty"`
	DurationSeconds      float64          `json:"durationSeconds,omitempty"`
	ScreenRecording      *ScreenRecording `json:"screenRecording,omitempty"`

	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	CurrentStep  string    `json:"currentStep,omitempty"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`

	ShareID    string `json:"shareId,omitempty"`
	ViewCount  int64  `json:"viewCount"`
	WebhookURL string `json:"webhookUrl,omitempty"`

	References  []ChangeRequestRef `json:"references"`
	Screenshots []Screenshot       `json:"screenshots,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// ChangeRequestRef is one linked change request with its cached metadata.
// DisplayOrder is authoritative for narrative construction.
type ChangeRequestRef struct {
	Reference
	DisplayOrder int    `json:"displayOrder"`
	Title        string `json:"title,omitempty"`
	Body         string `json:"body,omitempty"`
	Author       string `json:"author,omitempty"`
	AuthorAvatar string `json:"authorAvatar,omitempty"`
	FilesChanged int    `json:"filesChanged"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
}

// Screenshot is an image attached to the job, either found in discussion
// comments or captured from a preview deployment.
type Screenshot struct {
	URL           string           `json:"url"`
	AltText       string           `json:"altText,omitempty"`
	Source        ScreenshotSource `json:"source"`
	CommentID     int64            `json:"commentId"`
	CommentAuthor string           `json:"commentAuthor"`
	DisplayOrder  int              `json:"displayOrder"`
}

// Sentinel origin values for screenshots that did not come from a comment.
const (
	AutoCaptureCommentID     int64 = 0
	AutoCaptureCommentAuthor       = "auto-capture"
)

// ScreenRecording is an optional user-supplied recording; at most one per job.
type ScreenRecording struct {
	StorageKey  string    `json:"storageKey"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	DurationMs  int64     `json:"durationMs"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// ApplyMetrics copies the primary reference's metadata onto the job and
// recomputes totals. Totals are the sum over all references when more than
// one is linked, otherwise they equal the single reference's metrics.
func (j *Job) ApplyMetrics() {
	j.PRCount = len(j.References)
	if len(j.References) == 0 {
		return
	}

	primary := j.References[0]
	j.RepoOwner = primary.Owner
	j.RepoName = primary.Repo
	j.PRNumber = primary.Number
	j.PRURL = primary.URL
	j.PRTitle = primary.Title
	j.PRBody = primary.Body
	j.PRAuthor = primary.Author
	j.PRAuthorAvatar = primary.AuthorAvatar
	j.FilesChanged = primary.FilesChanged
	j.Additions = primary.Additions
	j.Deletions = primary.Deletions

	if len(j.References) == 1 {
		j.TotalFilesChanged = primary.FilesChanged
		j.TotalAdditions = primary.Additions
		j.TotalDeletions = primary.Deletions
		return
	}

	j.TotalFilesChanged, j.TotalAdditions, j.TotalDeletions = 0, 0, 0
	for _, ref := range j.References {
		j.TotalFilesChanged += ref.FilesChanged
		j.TotalAdditions += ref.Additions
		j.TotalDeletions += ref.Deletions
	}
}

// IsMulti reports whether several change requests are combined.
func (j *Job) IsMulti() bool {
	return len(j.References) > 1
}

// ClearOutputs drops everything a pipeline run produced so a retry starts
// from an empty slate. Uploaded recordings are user input and stay.
func (j *Job) ClearOutputs() {
	j.Summary = ""
	j.Script = ""
	j.ChangeType = ""
	j.AudioURL = ""
	j.AudioDurationSeconds = 0
	j.AudioDurationApprox = false
	j.VideoURL = ""
	j.ThumbnailURL = ""
	j.DurationSeconds = 0
	j.Screenshots = nil
	if j.IsMulti() {
		j.Title = ""
	}
}
