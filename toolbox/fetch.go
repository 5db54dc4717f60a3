package toolbox

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/go-shiori/go-readability"
)

const (
	fetchBodyLimit   = 1 << 20 // 1MB
	fetchOutputLimit = 8000
	fetchUserAgent   = "Mozilla/5.0 (compatible; VigilBot/1.0)"
)

// Fetcher downloads web pages and extracts readable text.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with a 15-second timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 15 * time.Second}}
}

// Fetch downloads a URL, runs readability extraction and falls back to
// plain tag stripping. Output is capped at 8000 characters.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}
	rawHTML := string(body)

	text := ""
	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err == nil && article.TextContent != "" {
		text = strings.TrimSpace(article.TextContent)
	} else {
		text = stripHTML(rawHTML)
	}

	if len(text) > fetchOutputLimit {
		text = text[:fetchOutputLimit] + "\n... (truncated)"
	}
	return text, nil
}

// stripHTML removes tags, script and style bodies, decodes entities and
// collapses whitespace. Last-resort extraction for pages readability
// cannot parse.
func stripHTML(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inTag, inScript, inStyle, nameDone := false, false, false, false
	var tagName strings.Builder

	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
			nameDone = false
			tagName.Reset()
		case inTag:
			if r == '>' {
				inTag = false
				switch strings.ToLower(tagName.String()) {
				case "script":
					inScript = true
				case "/script":
					inScript = false
				case "style":
					inStyle = true
				case "/style":
					inStyle = false
				}
				out.WriteByte('\n')
			} else if unicode.IsSpace(r) {
				nameDone = true
			} else if !nameDone && tagName.Len() < 16 {
				tagName.WriteRune(r)
			}
		case inScript || inStyle:
		default:
			out.WriteRune(r)
		}
	}
	return collapseWhitespace(html.UnescapeString(out.String()))
}

func collapseWhitespace(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	newlines, spaces := 0, 0
	for _, r := range s {
		switch {
		case r == '\n':
			newlines++
			spaces = 0
		case unicode.IsSpace(r):
			spaces++
		default:
			if newlines > 0 {
				if newlines > 2 {
					newlines = 2
				}
				out.WriteString(strings.Repeat("\n", newlines))
			} else if spaces > 0 {
				out.WriteByte(' ')
			}
			newlines, spaces = 0, 0
			out.WriteRune(r)
		}
	}
	return strings.TrimSpace(out.String())
}
