package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/prreel/api/internal/client"
	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/model"
)

var (
	markdownImagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	htmlImagePattern     = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	srcAttrPattern       = regexp.MustCompile(`(?i)\bsrc\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	altAttrPattern       = regexp.MustCompile(`(?i)\balt\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// Hosts that only serve decoration: avatars, badges and coverage graphs
var excludedImageHosts = []string{
	"avatars.githubusercontent.com",
	"gravatar.com",
	"shields.io",
	"codecov.io",
	"coveralls.io",
}

// Filename substrings that mark an image as an icon rather than a screenshot
var excludedImageNames = []string{
	"badge",
	"favicon",
	"icon",
	"status",
	"indicator",
}

// Small-dimension hints such as check-16x16.png, but not 1216x800.png
var smallDimensionPattern = regexp.MustCompile(`(^|[^0-9])(16|32)x`)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// Hosts that serve uploads without a file extension
var imageHosts = []string{
	"user-images.githubusercontent.com",
	"private-user-images.githubusercontent.com",
	"github.com/user-attachments",
	"imgur.com",
	"cloudinary.com",
}

// Deployment and CI bot accounts, matched case-insensitively
var botSources = map[string]model.ScreenshotSource{
	"vercel[bot]":                       model.SourceVercel,
	"netlify[bot]":                      model.SourceNetlify,
	"cloudflare-pages[bot]":             model.SourceCloudflare,
	"cloudflare-workers-and-pages[bot]": model.SourceCloudflare,
	"railway-app[bot]":                  model.SourceRailway,
	"github-actions[bot]":               model.SourceGitHubActions,
	"percy[bot]":                        model.SourcePercy,
	"chromatic-com[bot]":                model.SourceChromatic,
}

// URL substrings checked in order when the author is not a known bot
var domainSources = []struct {
	substr string
	source model.ScreenshotSource
}{
	{"vercel.app", model.SourceVercel},
	{"vercel.com", model.SourceVercel},
	{"netlify.app", model.SourceNetlify},
	{"netlify.com", model.SourceNetlify},
	{"pages.dev", model.SourceCloudflare},
	{"railway.app", model.SourceRailway},
	{"percy.io", model.SourcePercy},
	{"chromatic.com", model.SourceChromatic},
}

// Preview deployment URLs, only looked for in deployment bot comments
var previewURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`https://[a-zA-Z0-9][a-zA-Z0-9-]*\.vercel\.app`),
	regexp.MustCompile(`https://[a-zA-Z0-9][a-zA-Z0-9-]*\.netlify\.app`),
	regexp.MustCompile(`https://(?:[a-zA-Z0-9][a-zA-Z0-9-]*\.)+pages\.dev`),
	regexp.MustCompile(`https://[a-zA-Z0-9][a-zA-Z0-9-]*\.up\.railway\.app`),
}

var deploymentBots = map[model.ScreenshotSource]bool{
	model.SourceVercel:     true,
	model.SourceNetlify:    true,
	model.SourceCloudflare: true,
	model.SourceRailway:    true,
}

type imageCandidate struct {
	pos int
	url string
	alt string
}

// ExtractScreenshots scans comments in order and returns at most
// model.MaxScreenshots accepted images, in first-seen order.
func ExtractScreenshots(comments []model.Comment) []model.Screenshot {
	seen := make(map[string]bool)
	var shots []model.Screenshot

	for _, cm := range comments {
		for _, cand := range imageCandidates(cm.Body) {
			if seen[cand.url] {
				continue
			}
			seen[cand.url] = true

			if !IsScreenshotURL(cand.url) {
				continue
			}

			shots = append(shots, model.Screenshot{
				URL:           cand.url,
				AltText:       cand.alt,
				Source:        ClassifySource(cm.Author, cand.url),
				CommentID:     cm.ID,
				CommentAuthor: cm.Author,
				DisplayOrder:  len(shots),
			})
			if len(shots) == model.MaxScreenshots {
				return shots
			}
		}
	}
	return shots
}

// imageCandidates returns markdown and HTML images in body order
func imageCandidates(body string) []imageCandidate {
	var out []imageCandidate

	for _, m := range markdownImagePattern.FindAllStringSubmatchIndex(body, -1) {
		out = append(out, imageCandidate{
			pos: m[0],
			alt: body[m[2]:m[3]],
			url: strings.TrimSpace(body[m[4]:m[5]]),
		})
	}

	for _, m := range htmlImagePattern.FindAllStringIndex(body, -1) {
		tag := body[m[0]:m[1]]
		src := attrValue(srcAttrPattern, tag)
		if src == "" {
			continue
		}
		out = append(out, imageCandidate{
			pos: m[0],
			url: html.UnescapeString(src),
			alt: html.UnescapeString(attrValue(altAttrPattern, tag)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

func attrValue(p *regexp.Regexp, tag string) string {
	m := p.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[2])
}

// IsScreenshotURL applies the validity filter: absolute URL, not on the
// exclusion list, and either an image extension or a known image host.
func IsScreenshotURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	lower := strings.ToLower(raw)
	host := strings.ToLower(u.Host)
	for _, h := range excludedImageHosts {
		if strings.Contains(host, h) {
			return false
		}
	}
	if strings.Contains(strings.ToLower(u.Path), "emoji") {
		return false
	}
	name := strings.ToLower(path.Base(u.Path))
	for _, p := range excludedImageNames {
		if strings.Contains(name, p) {
			return false
		}
	}
	if smallDimensionPattern.MatchString(name) {
		return false
	}

	if imageExtensions[strings.ToLower(path.Ext(u.Path))] {
		return true
	}
	for _, h := range imageHosts {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// ClassifySource tags an image by comment author first, then by URL domain
func ClassifySource(author, imageURL string) model.ScreenshotSource {
	if src, ok := botSources[strings.ToLower(author)]; ok {
		return src
	}
	lower := strings.ToLower(imageURL)
	for _, d := range domainSources {
		if strings.Contains(lower, d.substr) {
			return d.source
		}
	}
	return model.SourceComment
}

// FindPreviewURL returns the first preview deployment URL posted by a
// deployment bot, or "" if there is none.
func FindPreviewURL(comments []model.Comment) string {
	for _, cm := range comments {
		src, ok := botSources[strings.ToLower(cm.Author)]
		if !ok || !deploymentBots[src] {
			continue
		}

		best, bestPos := "", -1
		for _, p := range previewURLPatterns {
			loc := p.FindStringIndex(cm.Body)
			if loc != nil && (bestPos == -1 || loc[0] < bestPos) {
				best, bestPos = cm.Body[loc[0]:loc[1]], loc[0]
			}
		}
		if best != "" {
			return best
		}
	}
	return ""
}

// ScreenshotService collects screenshots for a job, falling back to a
// headless capture of the preview deployment when comments have none.
type ScreenshotService struct {
	capturer client.PageCapturer
	storage  client.StorageClient
}

// NewScreenshotService creates the service. capturer may be nil, which
// disables the capture fallback.
func NewScreenshotService(capturer client.PageCapturer, storage client.StorageClient) *ScreenshotService {
	return &ScreenshotService{capturer: capturer, storage: storage}
}

// Collect never fails: capture and upload problems are logged and the job
// continues with whatever was found.
func (s *ScreenshotService) Collect(ctx context.Context, jobID string, details []*model.ChangeRequestDetails) []model.Screenshot {
	var comments []model.Comment
	for _, d := range details {
		comments = append(comments, d.Comments...)
	}

	shots := ExtractScreenshots(comments)
	if len(shots) > 0 || s.capturer == nil {
		return shots
	}

	previewURL := FindPreviewURL(comments)
	if previewURL == "" {
		return nil
	}
	return s.capture(ctx, jobID, previewURL)
}

func (s *ScreenshotService) capture(ctx context.Context, jobID, previewURL string) []model.Screenshot {
	log := logger.Job(jobID).WithField("preview_url", previewURL)

	resp, err := s.capturer.Capture(ctx, &client.CaptureRequest{
		URL:    previewURL,
		Routes: []string{"/"},
	})
	if err != nil {
		log.WithError(err).Warn("preview capture failed, continuing without screenshots")
		return nil
	}

	var shots []model.Screenshot
	for i, img := range resp.Screenshots {
		if len(shots) == model.MaxScreenshots {
			break
		}
		url, err := s.store(ctx, jobID, i, img)
		if err != nil {
			log.WithError(err).Warn("failed to store captured screenshot")
			continue
		}
		shots = append(shots, model.Screenshot{
			URL:           url,
			AltText:       fmt.Sprintf("Preview of %s", img.Route),
			Source:        model.SourceAutoCapture,
			CommentID:     model.AutoCaptureCommentID,
			CommentAuthor: model.AutoCaptureCommentAuthor,
			DisplayOrder:  len(shots),
		})
	}
	log.WithField("count", len(shots)).Info("captured preview screenshots")
	return shots
}

func (s *ScreenshotService) store(ctx context.Context, jobID string, i int, img client.CapturedImage) (string, error) {
	data := img.Image
	if idx := strings.Index(data, ","); strings.HasPrefix(data, "data:") && idx >= 0 {
		data = data[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if s.storage == nil {
		return "", fmt.Errorf("no storage configured")
	}
	key := fmt.Sprintf("screenshots/%s/capture-%d.png", jobID, i)
	return s.storage.Upload(ctx, key, bytes.NewReader(raw), "image/png")
}
