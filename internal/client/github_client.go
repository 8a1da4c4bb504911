package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/prreel/api/internal/config"
	"github.com/prreel/api/internal/model"
)

// SourceControl defines the read-only source-control operations the pipeline needs
type SourceControl interface {
	GetChangeRequest(ctx context.Context, ref model.Reference) (*ChangeRequest, error)
	ListFiles(ctx context.Context, ref model.Reference) ([]model.FileChange, error)
	ListCommits(ctx context.Context, ref model.Reference) ([]model.Commit, error)
	ListComments(ctx context.Context, ref model.Reference) ([]model.Comment, error)
}

// ChangeRequest is the top-level metadata of a pull request
type ChangeRequest struct {
	Title        string
	Body         string
	Author       string
	AuthorAvatar string
	ChangedFiles int
	Additions    int
	Deletions    int
}

// GitHubClient implements SourceControl for the GitHub REST API
type GitHubClient struct {
	gh    *github.Client
	token string
}

const (
	githubPageSize = 100
	// GitHub stops listing pull request files at 3000
	githubMaxPages = 30
)

// NewGitHubClient creates a new GitHub client. An empty token still works for
// public repositories at the anonymous rate limit.
func NewGitHubClient(cfg *config.GitHubConfig) (*GitHubClient, error) {
	gh := github.NewClient(&http.Client{Timeout: 30 * time.Second})
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		gh.BaseURL = u
	}

	return &GitHubClient{gh: gh, token: cfg.Token}, nil
}

// GetChangeRequest fetches title, body, author and diff stats
func (c *GitHubClient) GetChangeRequest(ctx context.Context, ref model.Reference) (*ChangeRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return nil, fmt.Errorf("get pull request %s: %w", ref, err)
	}

	return &ChangeRequest{
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		Author:       pr.GetUser().GetLogin(),
		AuthorAvatar: pr.GetUser().GetAvatarURL(),
		ChangedFiles: pr.GetChangedFiles(),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
	}, nil
}

// ListFiles returns changed files in the order GitHub reports them
func (c *GitHubClient) ListFiles(ctx context.Context, ref model.Reference) ([]model.FileChange, error) {
	var result []model.FileChange
	opts := &github.ListOptions{PerPage: githubPageSize}
	for page := 0; page < githubMaxPages; page++ {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, ref.Owner, ref.Repo, ref.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("list files %s: %w", ref, err)
		}
		for _, f := range files {
			result = append(result, model.FileChange{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// ListCommits returns the commit list in source order
func (c *GitHubClient) ListCommits(ctx context.Context, ref model.Reference) ([]model.Commit, error) {
	var result []model.Commit
	opts := &github.ListOptions{PerPage: githubPageSize}
	for page := 0; page < githubMaxPages; page++ {
		commits, resp, err := c.gh.PullRequests.ListCommits(ctx, ref.Owner, ref.Repo, ref.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("list commits %s: %w", ref, err)
		}
		for _, rc := range commits {
			author := rc.GetCommit().GetAuthor().GetName()
			if login := rc.GetAuthor().GetLogin(); login != "" {
				author = login
			}
			result = append(result, model.Commit{
				SHA:     rc.GetSHA(),
				Message: rc.GetCommit().GetMessage(),
				Author:  author,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// ListComments returns the discussion comments of the pull request
func (c *GitHubClient) ListComments(ctx context.Context, ref model.Reference) ([]model.Comment, error) {
	var result []model.Comment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: githubPageSize}}
	for page := 0; page < githubMaxPages; page++ {
		comments, resp, err := c.gh.Issues.ListComments(ctx, ref.Owner, ref.Repo, ref.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("list comments %s: %w", ref, err)
		}
		for _, cm := range comments {
			result = append(result, model.Comment{
				ID:     cm.GetID(),
				Author: cm.GetUser().GetLogin(),
				Body:   cm.GetBody(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// IsConfigured returns true if an access token is set
func (c *GitHubClient) IsConfigured() bool {
	return c.token != ""
}
