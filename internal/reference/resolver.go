// Package reference parses and validates change request URLs.
package reference

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/pkg/errno"
)

// MaxReferences is the largest batch that can be combined into one job.
const MaxReferences = 10

var pullURLPattern = regexp.MustCompile(`^https?://([^/\s]+)/([^/\s]+)/([^/\s]+)/pull/(\d+)(?:[/?#]\S*)?$`)

// Parse parses a single change request URL of the form
// https://host/{owner}/{repo}/pull/{number}.
func Parse(raw string) (model.Reference, error) {
	trimmed := strings.TrimSpace(raw)
	m := pullURLPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return model.Reference{}, errno.ErrInvalidReference.With("%q is not a pull request URL", raw)
	}

	number, err := strconv.Atoi(m[4])
	if err != nil || number <= 0 {
		return model.Reference{}, errno.ErrInvalidReference.With("%q has an invalid pull request number", raw)
	}

	owner, repo := m[2], strings.TrimSuffix(m[3], ".git")
	return model.Reference{
		Owner:  owner,
		Repo:   repo,
		Number: number,
		URL:    "https://" + m[1] + "/" + owner + "/" + repo + "/pull/" + m[4],
	}, nil
}

// Resolve parses 1..MaxReferences URLs. All references must share the same
// owner/repo and no number may repeat. The returned order is the input order.
func Resolve(urls []string) ([]model.Reference, error) {
	if len(urls) == 0 {
		return nil, errno.ErrInvalidReference.With("at least one pull request URL is required")
	}
	if len(urls) > MaxReferences {
		return nil, errno.ErrInvalidReference.With("at most %d pull request URLs can be combined, got %d", MaxReferences, len(urls))
	}

	refs := make([]model.Reference, 0, len(urls))
	seen := make(map[int]bool, len(urls))

	for _, raw := range urls {
		ref, err := Parse(raw)
		if err != nil {
			return nil, err
		}

		if len(refs) > 0 {
			first := refs[0]
			if !strings.EqualFold(first.Owner, ref.Owner) || !strings.EqualFold(first.Repo, ref.Repo) {
				return nil, errno.ErrCrossRepositoryReference.With("%s/%s does not match %s/%s", ref.Owner, ref.Repo, first.Owner, first.Repo)
			}
		}

		if seen[ref.Number] {
			return nil, errno.ErrDuplicateReference.With("pull request #%d listed more than once", ref.Number)
		}
		seen[ref.Number] = true

		refs = append(refs, ref)
	}

	return refs, nil
}
