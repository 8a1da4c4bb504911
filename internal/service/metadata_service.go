package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/pkg/errno"
)

// Payload budgets for the narrative request
const (
	MaxPatchLines     = 500
	MultiPatchLines   = 200
	FileBudget        = 15
	MinFilesPerItem   = 3
	MaxCommitsPerItem = 5
	truncationMarker  = "... %d more lines truncated"
)

// MetadataService fetches change request details from source control
type MetadataService struct {
	source client.SourceControl
}

func NewMetadataService(source client.SourceControl) *MetadataService {
	return &MetadataService{source: source}
}

// FetchAll fetches every reference concurrently. Results keep the order of
// refs. Any single failure cancels the rest and fails the whole call.
func (s *MetadataService) FetchAll(ctx context.Context, refs []model.Reference) ([]*model.ChangeRequestDetails, error) {
	results := make([]*model.ChangeRequestDetails, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		goRecover(g, func() error {
			details, err := s.fetchOne(gctx, ref)
			if err != nil {
				return err
			}
			results[i] = details
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errno.ErrSourceFetch.Wrap(err)
	}
	return results, nil
}

// goRecover runs fn on g and turns a panic into an error so it fails the
// group instead of the process.
func goRecover(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	})
}

func (s *MetadataService) fetchOne(ctx context.Context, ref model.Reference) (*model.ChangeRequestDetails, error) {
	var (
		pr       *client.ChangeRequest
		files    []model.FileChange
		commits  []model.Commit
		comments []model.Comment
	)

	g, gctx := errgroup.WithContext(ctx)
	goRecover(g, func() (err error) {
		pr, err = s.source.GetChangeRequest(gctx, ref)
		return err
	})
	goRecover(g, func() (err error) {
		files, err = s.source.ListFiles(gctx, ref)
		return err
	})
	goRecover(g, func() (err error) {
		commits, err = s.source.ListCommits(gctx, ref)
		return err
	})
	goRecover(g, func() (err error) {
		comments, err = s.source.ListComments(gctx, ref)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range files {
		files[i].Patch, files[i].PatchLines = TruncatePatch(files[i].Patch, MaxPatchLines)
	}

	logger.Log.WithFields(map[string]interface{}{
		"ref":      ref.String(),
		"files":    len(files),
		"commits":  len(commits),
		"comments": len(comments),
	}).Debug("fetched change request")

	return &model.ChangeRequestDetails{
		Ref:          ref,
		Title:        pr.Title,
		Body:         pr.Body,
		Author:       pr.Author,
		AuthorAvatar: pr.AuthorAvatar,
		ChangedFiles: pr.ChangedFiles,
		Additions:    pr.Additions,
		Deletions:    pr.Deletions,
		Files:        files,
		Commits:      commits,
		Comments:     comments,
	}, nil
}

// TruncatePatch keeps the first max lines of patch and appends a marker line
// when anything was cut. It also returns the line count of the input.
func TruncatePatch(patch string, max int) (string, int) {
	if patch == "" {
		return "", 0
	}
	lines := splitLines(patch)
	total := len(lines)
	if total <= max {
		return patch, total
	}
	return joinTruncated(lines[:max], total-max), total
}

// retruncate cuts an already truncated patch further. total is the line
// count of the original patch so the marker stays exact.
func retruncate(f model.FileChange, max int) string {
	total := f.PatchLines
	if total <= max {
		return f.Patch
	}
	lines := splitLines(f.Patch)
	if len(lines) > max {
		lines = lines[:max]
	}
	return joinTruncated(lines, total-max)
}

// splitLines splits on newlines. A trailing newline ends the last line
// rather than starting an empty one.
func splitLines(patch string) []string {
	return strings.Split(strings.TrimSuffix(patch, "\n"), "\n")
}

func joinTruncated(kept []string, dropped int) string {
	return strings.Join(kept, "\n") + "\n" + fmt.Sprintf(truncationMarker, dropped)
}

// FilesPerItem is how many files of each change request are shown when n
// change requests share one narrative request.
func FilesPerItem(n int) int {
	if n <= 0 {
		return FileBudget
	}
	per := FileBudget / n
	if per < MinFilesPerItem {
		return MinFilesPerItem
	}
	return per
}
