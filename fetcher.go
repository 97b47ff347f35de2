package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// HTTP timeout for each fetch
	FetcherTimeout = 30 * time.Second

	// MaxFetchedContentLength caps extracted text so a single page can't blow
	// up a discussion prompt
	MaxFetchedContentLength = 8000

	// User agent for HTTP requests
	FetcherUserAgent = "LLM-Roundtable-Fetcher/1.0"
)

// FetchURLContent fetches a web page and extracts its readable text.
// Used to seed discussion topics with background context and by the
// /api/fetch-url endpoint. Strips scripts, styles and navigation chrome,
// keeping the title and paragraph text, truncated to a bounded length.
func FetchURLContent(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("unsupported URL scheme: %s", url)
	}

	// Create HTTP request with context
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", FetcherUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	client := &http.Client{
		Timeout: FetcherTimeout,
	}

	// Execute request with retry logic
	var resp *http.Response
	maxRetries := 2
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err = client.Do(req)
		if err == nil {
			break
		}

		if attempt < maxRetries-1 {
			log.Printf("Fetch attempt %d failed, retrying in 2s: %v", attempt+1, err)
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		return "", fmt.Errorf("failed to fetch %s after %d attempts: %w", url, maxRetries, err)
	}
	defer resp.Body.Close()

	// Check status code
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}

	// Parse HTML
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	return ExtractReadableText(doc), nil
}

// ExtractReadableText pulls the title and main text content out of a parsed
// document, skipping script/style/nav elements.
func ExtractReadableText(doc *goquery.Document) string {
	// Drop non-content elements before extracting text
	doc.Find("script, style, nav, header, footer, noscript, iframe").Remove()

	var sb strings.Builder

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		sb.WriteString(title + "\n\n")
	}

	// Prefer structured paragraph content; fall back to body text
	doc.Find("article p, main p, p").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			sb.WriteString(text + "\n")
		}
	})

	content := sb.String()
	if strings.TrimSpace(content) == title || strings.TrimSpace(content) == "" {
		content = strings.TrimSpace(doc.Find("body").Text())
	}

	content = collapseWhitespace(content)

	if len(content) > MaxFetchedContentLength {
		content = content[:MaxFetchedContentLength] + "..."
	}
	return content
}

// collapseWhitespace squeezes runs of blank lines and trims each line.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
