package model

// Job status
type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusAnalyzing       JobStatus = "analyzing"
	JobStatusGeneratingAudio JobStatus = "generating_audio"
	JobStatusRendering       JobStatus = "rendering"
	JobStatusComplete        JobStatus = "complete"
	JobStatusFailed          JobStatus = "failed"
)

// IsTerminal reports whether no further automatic transition happens.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Retryable reports whether an explicit retry may reset the job. Rendering
// is included to recover renders whose callback never arrived.
func (s JobStatus) Retryable() bool {
	return s == JobStatusFailed || s == JobStatusRendering
}

// Change classification produced by the narrative collaborator
type ChangeType string

const (
	ChangeTypeFeature  ChangeType = "feature"
	ChangeTypeBugfix   ChangeType = "bugfix"
	ChangeTypeRefactor ChangeType = "refactor"
	ChangeTypeDocs     ChangeType = "docs"
	ChangeTypeOther    ChangeType = "other"
)

var changeTypes = []ChangeType{
	ChangeTypeFeature, ChangeTypeBugfix, ChangeTypeRefactor, ChangeTypeDocs, ChangeTypeOther,
}

// ParseChangeType accepts only the exact enumeration values.
func ParseChangeType(s string) (ChangeType, bool) {
	for _, ct := range changeTypes {
		if string(ct) == s {
			return ct, true
		}
	}
	return "", false
}

// Screenshot provenance
type ScreenshotSource string

const (
	SourceVercel        ScreenshotSource = "vercel"
	SourceNetlify       ScreenshotSource = "netlify"
	SourceCloudflare    ScreenshotSource = "cloudflare"
	SourceRailway       ScreenshotSource = "railway"
	SourceGitHubActions ScreenshotSource = "github-actions"
	SourcePercy         ScreenshotSource = "percy"
	SourceChromatic     ScreenshotSource = "chromatic"
	SourceComment       ScreenshotSource = "comment"
	SourceAutoCapture   ScreenshotSource = "auto-capture"
)

// Where a job was submitted from
type JobOrigin string

const (
	JobOriginApp JobOrigin = "app"
	JobOriginAPI JobOrigin = "api"
)
