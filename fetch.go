package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MaxFetchedContentLength caps extracted page text so a single URL
	// cannot blow up the Stage 1 prompt
	MaxFetchedContentLength = 100_000
)

// FetchURLContent fetches a web page and extracts its readable text for use
// as attached query context. Results are cached; a cache hit skips the
// network entirely.
func FetchURLContent(ctx context.Context, url string) (string, error) {
	if pageCache != nil {
		if content, ok := pageCache.Get(url); ok {
			return content, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	client := &http.Client{
		Timeout: FetchTimeout,
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	content := ExtractReadableText(doc)
	if content == "" {
		return "", fmt.Errorf("no readable content found at %s", url)
	}

	if pageCache != nil {
		pageCache.Set(url, content)
	}
	log.Printf("Fetched %d characters of content from %s", len(content), url)

	return content, nil
}

// ExtractReadableText strips markup, scripts and styles from a document and
// returns the page's visible text, one line per block, truncated to
// MaxFetchedContentLength.
func ExtractReadableText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, iframe, svg").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var lines []string
	for _, raw := range strings.Split(root.Text(), "\n") {
		line := strings.Join(strings.Fields(raw), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}

	content := strings.Join(lines, "\n")
	if len(content) > MaxFetchedContentLength {
		content = content[:MaxFetchedContentLength]
	}
	return content
}
