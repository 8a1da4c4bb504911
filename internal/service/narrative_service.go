package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/pkg/errno"
)

const singleSystemPrompt = `You write short narrated videos that explain a code change to people who do not write code: product managers, designers, support staff and customers.

Rules:
- Use plain, everyday language. Never use technical jargon, file names, function names, framework names or programming terms.
- Focus on what changed for the people who use the product and why it matters to the business.
- The script is read aloud. Write complete spoken sentences, no lists, no markdown, no emojis.
- Structure the script in four beats: a hook that grabs attention, what changed, why it matters, and a short wrap-up.
- The script must take 60 to 90 seconds to read aloud (roughly 150 to 220 words).

Respond with a single JSON object and nothing else:
{"summary": "one or two sentence plain-language summary", "script": "the voice-over script", "changeType": "feature|bugfix|refactor|docs|other"}`

const multiSystemPrompt = `You write short narrated videos that explain a set of related code changes to people who do not write code: product managers, designers, support staff and customers.

Rules:
- Use plain, everyday language. Never use technical jargon, file names, function names, framework names or programming terms.
- Do NOT describe the changes one by one and do NOT list them. Find the single theme that ties all of them together and tell one story about it.
- Focus on what changed for the people who use the product and why it matters to the business.
- The script is read aloud. Write complete spoken sentences, no lists, no markdown, no emojis.
- Structure the script in four beats: a hook that grabs attention, what changed, why it matters, and a short wrap-up.
- The script must take 90 to 120 seconds to read aloud (roughly 220 to 300 words).
- The unified title names the shared theme in under ten words.

Respond with a single JSON object and nothing else:
{"unifiedTitle": "title for the whole set", "summary": "one or two sentence plain-language summary", "script": "the voice-over script", "changeType": "feature|bugfix|refactor|docs|other"}`

const multiDescriptionLimit = 1000

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Narrative is the structured result of the narrative collaborator
type Narrative struct {
	UnifiedTitle string           `json:"unifiedTitle"`
	Summary      string           `json:"summary" validate:"required"`
	Script       string           `json:"script" validate:"required"`
	ChangeType   model.ChangeType `json:"changeType" validate:"required,changetype"`
}

type multiNarrative struct {
	Narrative
	UnifiedTitle string `json:"unifiedTitle" validate:"required"`
}

// NarrativeService builds the narrative request and validates the response
type NarrativeService struct {
	llm      client.ChatCompleter
	validate *validator.Validate
}

func NewNarrativeService(llm client.ChatCompleter) *NarrativeService {
	v := validator.New()
	_ = v.RegisterValidation("changetype", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseChangeType(fl.Field().String())
		return ok
	})
	return &NarrativeService{
		llm:      llm,
		validate: v,
	}
}

// Generate picks the single or multi path from the number of change requests
func (s *NarrativeService) Generate(ctx context.Context, details []*model.ChangeRequestDetails) (*Narrative, error) {
	if len(details) == 0 {
		return nil, errno.ErrNarrativeParse.With("no change requests to narrate")
	}
	if len(details) == 1 {
		return s.generateSingle(ctx, details[0])
	}
	return s.generateMulti(ctx, details)
}

func (s *NarrativeService) generateSingle(ctx context.Context, d *model.ChangeRequestDetails) (*Narrative, error) {
	raw, err := s.llm.ChatCompletion(ctx, singleSystemPrompt, BuildSingleDocument(d))
	if err != nil {
		return nil, errno.ErrNarrativeParse.Wrap(err)
	}

	var out Narrative
	if err := s.decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *NarrativeService) generateMulti(ctx context.Context, details []*model.ChangeRequestDetails) (*Narrative, error) {
	raw, err := s.llm.ChatCompletion(ctx, multiSystemPrompt, BuildMultiDocument(details))
	if err != nil {
		return nil, errno.ErrNarrativeParse.Wrap(err)
	}

	var out multiNarrative
	if err := s.decode(raw, &out); err != nil {
		return nil, err
	}
	out.Narrative.UnifiedTitle = out.UnifiedTitle
	return &out.Narrative, nil
}

func (s *NarrativeService) decode(raw string, v interface{}) error {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return errno.ErrNarrativeParse.With("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return errno.ErrNarrativeParse.With("malformed JSON: %v", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return errno.ErrNarrativeParse.With("response does not match schema: %v", err)
	}
	return nil
}

// extractJSONObject returns a fenced JSON block if present, otherwise the
// span from the first '{' to the last '}'.
func extractJSONObject(raw string) (string, bool) {
	if m := fencedJSONPattern.FindStringSubmatch(raw); m != nil {
		return m[1], true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// BuildSingleDocument formats one change request for the narrative request
func BuildSingleDocument(d *model.ChangeRequestDetails) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Title: %s\n", d.Title)
	fmt.Fprintf(&b, "Author: %s\n", d.Author)
	fmt.Fprintf(&b, "Stats: %d files changed, +%d -%d\n\n", d.ChangedFiles, d.Additions, d.Deletions)

	b.WriteString("Description:\n")
	b.WriteString(descriptionOrPlaceholder(d.Body, 0))
	b.WriteString("\n\n")

	if len(d.Commits) > 0 {
		b.WriteString("Commits:\n")
		for _, c := range d.Commits {
			fmt.Fprintf(&b, "- %s\n", firstLine(c.Message))
		}
		b.WriteString("\n")
	}

	writeFiles(&b, d.Files, FileBudget, MaxPatchLines)
	return b.String()
}

// BuildMultiDocument formats several change requests under aggregate
// totals, applying the per-item budgets.
func BuildMultiDocument(details []*model.ChangeRequestDetails) string {
	var b strings.Builder
	n := len(details)

	files, adds, dels := 0, 0, 0
	for _, d := range details {
		files += d.ChangedFiles
		adds += d.Additions
		dels += d.Deletions
	}

	ref := details[0].Ref
	fmt.Fprintf(&b, "Combined change set: %d pull requests in %s/%s\n", n, ref.Owner, ref.Repo)
	fmt.Fprintf(&b, "Total: %d files changed, +%d -%d\n", files, adds, dels)

	perItem := FilesPerItem(n)
	for i, d := range details {
		fmt.Fprintf(&b, "\n## Part %d of %d: %s (#%d)\n", i+1, n, d.Title, d.Ref.Number)
		fmt.Fprintf(&b, "Author: %s\n", d.Author)
		fmt.Fprintf(&b, "Stats: %d files changed, +%d -%d\n", d.ChangedFiles, d.Additions, d.Deletions)
		b.WriteString("Description:\n")
		b.WriteString(descriptionOrPlaceholder(d.Body, multiDescriptionLimit))
		b.WriteString("\n")

		if len(d.Commits) > 0 {
			b.WriteString("Commits:\n")
			for j, c := range d.Commits {
				if j == MaxCommitsPerItem {
					fmt.Fprintf(&b, "... and %d more\n", len(d.Commits)-MaxCommitsPerItem)
					break
				}
				fmt.Fprintf(&b, "- %s\n", firstLine(c.Message))
			}
		}

		writeFiles(&b, d.Files, perItem, MultiPatchLines)
	}
	return b.String()
}

func writeFiles(b *strings.Builder, files []model.FileChange, maxFiles, maxLines int) {
	if len(files) == 0 {
		return
	}
	b.WriteString("Files:\n")
	for i, f := range files {
		if i == maxFiles {
			fmt.Fprintf(b, "... and %d more files\n", len(files)-maxFiles)
			break
		}
		fmt.Fprintf(b, "### %s (%s, +%d -%d)\n", f.Filename, f.Status, f.Additions, f.Deletions)
		if f.Patch == "" {
			continue
		}
		b.WriteString("```diff\n")
		if maxLines < MaxPatchLines {
			b.WriteString(retruncate(f, maxLines))
		} else {
			b.WriteString(f.Patch)
		}
		b.WriteString("\n```\n")
	}
}

func descriptionOrPlaceholder(body string, limit int) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return "(no description provided)"
	}
	if r := []rune(body); limit > 0 && len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return body
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
