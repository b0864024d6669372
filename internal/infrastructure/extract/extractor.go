package extract

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

const (
	defaultMaxChars = 4000
	userAgent       = "DigestScheduler/1.0"
)

// bodySelectors are tried in order; the first one yielding text wins.
var bodySelectors = []string{"article p", "main p", "[itemprop=articleBody] p", "p"}

// Extractor downloads an article page and returns its readable paragraph text.
type Extractor struct {
	client   *http.Client
	maxChars int
}

// NewExtractor wires an HTTP client; maxChars <= 0 defaults to 4000.
func NewExtractor(client *http.Client, maxChars int) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Extractor{client: client, maxChars: maxChars}
}

// Extract returns the page's body text truncated to the configured length.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (string, error) {
	doc, err := e.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, aside").Remove()
	for _, sel := range bodySelectors {
		if text := collectParagraphs(doc.Find(sel)); text != "" {
			return truncate(text, e.maxChars), nil
		}
	}
	return "", errors.Newf("no readable text at %s", pageURL)
}

func (e *Extractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request document")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parse document")
	}
	return doc, nil
}

func collectParagraphs(sel *goquery.Selection) string {
	parts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, p *goquery.Selection) {
		text := strings.Join(strings.Fields(p.Text()), " ")
		if text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}
