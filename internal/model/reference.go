package model

import "fmt"

// Reference identifies a change request in the source-control system.
type Reference struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
	URL    string `json:"url"`
}

func (r Reference) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// ChangeRequestDetails is everything fetched for one change request.
type ChangeRequestDetails struct {
	Ref          Reference
	Title        string
	Body         string
	Author       string
	AuthorAvatar string
	ChangedFiles int
	Additions    int
	Deletions    int
	Files        []FileChange
	Commits      []Commit
	Comments     []Comment
}

// FileChange is one changed file. Patch may already be truncated; PatchLines
// keeps the line count of the original patch.
type FileChange struct {
	Filename   string
	Status     string
	Additions  int
	Deletions  int
	Patch      string
	PatchLines int
}

type Commit struct {
	SHA     string
	Message string
	Author  string
}

// Comment is a discussion comment on a change request.
type Comment struct {
	ID     int64
	Author string
	Body   string
}
