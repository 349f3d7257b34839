package settlement

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// enrichablePlatforms lists hosts whose links are worth fetching before
// scoring. Anything else is judged as a bare URL.
var enrichablePlatforms = []string{
	"github.com",
	"gist.github.com",
	"youtube.com",
	"youtu.be",
	"medium.com",
	"dev.to",
}

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaRe  = regexp.MustCompile(`(?is)<meta\s+name="description"\s+content="([^"]*)"`)
	tagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
)

// LinkEnricher fetches metadata for link submissions on known platforms so
// the scoring call sees more than a bare URL. Every failure is swallowed;
// enrichment is strictly best-effort.
type LinkEnricher struct {
	httpClient *http.Client
	maxBody    int64
}

// NewLinkEnricher creates an enricher with a bounded fetch timeout.
func NewLinkEnricher(timeout time.Duration) *LinkEnricher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LinkEnricher{
		httpClient: &http.Client{Timeout: timeout},
		maxBody:    64 * 1024,
	}
}

// Enrich returns submission content augmented with fetched page metadata,
// or the original content when the link is not enrichable or the fetch fails.
func (e *LinkEnricher) Enrich(ctx context.Context, sub Submission) string {
	if sub.Type != SubmissionLink {
		return sub.Content
	}
	link := strings.TrimSpace(sub.Content)
	if !isEnrichable(link) {
		return sub.Content
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return sub.Content
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return sub.Content
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sub.Content
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return sub.Content
	}

	title, description := extractPageMeta(string(body))
	if title == "" && description == "" {
		return sub.Content
	}
	var b strings.Builder
	b.WriteString(sub.Content)
	if title != "" {
		fmt.Fprintf(&b, "\nPage title: %s", title)
	}
	if description != "" {
		fmt.Fprintf(&b, "\nPage description: %s", description)
	}
	return b.String()
}

func isEnrichable(link string) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, platform := range enrichablePlatforms {
		if host == platform || strings.HasSuffix(host, "."+platform) {
			return true
		}
	}
	return false
}

func extractPageMeta(body string) (title, description string) {
	if m := titleRe.FindStringSubmatch(body); len(m) == 2 {
		title = cleanFragment(m[1])
	}
	if m := metaRe.FindStringSubmatch(body); len(m) == 2 {
		description = cleanFragment(m[1])
	}
	return title, description
}

func cleanFragment(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
