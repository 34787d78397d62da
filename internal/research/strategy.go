package research

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrSkip tells the chain that a strategy does not apply to a result and
// the next one should be tried.
var ErrSkip = errors.New("strategy does not apply")

// A Strategy turns a search result into article text. Strategies are tried
// in order; the first one returning non-empty text wins.
type Strategy func(ctx context.Context, r SearchResult) (string, error)

const (
	maxHTMLBytes = 2 << 20
	maxPDFBytes  = 20 << 20
	userAgent    = "Mozilla/5.0 (compatible; outreach-research/1.0)"
)

// DefaultStrategies returns the standard chain: page text, then PDF text,
// then the search snippet itself.
func DefaultStrategies(client *http.Client) []Strategy {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return []Strategy{FetchHTML(client), FetchPDF(client), SearchSnippet}
}

// FetchHTML downloads an HTML page and extracts its readable text.
func FetchHTML(client *http.Client) Strategy {
	return func(ctx context.Context, r SearchResult) (string, error) {
		if isPDFLink(r.Link) {
			return "", ErrSkip
		}
		resp, err := get(ctx, client, r.Link)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if mediaType(resp) != "text/html" {
			return "", ErrSkip
		}
		doc, err := html.Parse(io.LimitReader(resp.Body, maxHTMLBytes))
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", r.Link, err)
		}
		return extractText(doc), nil
	}
}

// FetchPDF downloads a PDF document and returns its plain text.
func FetchPDF(client *http.Client) Strategy {
	return func(ctx context.Context, r SearchResult) (string, error) {
		resp, err := get(ctx, client, r.Link)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if mediaType(resp) != "application/pdf" && !isPDFLink(r.Link) {
			return "", ErrSkip
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", r.Link, err)
		}
		return pdfText(data)
	}
}

// SearchSnippet falls back to the title and snippet the search engine
// already returned.
func SearchSnippet(_ context.Context, r SearchResult) (string, error) {
	if strings.TrimSpace(r.Snippet) == "" {
		return "", ErrSkip
	}
	if r.Title == "" {
		return r.Snippet, nil
	}
	return r.Title + ". " + r.Snippet, nil
}

func get(ctx context.Context, client *http.Client, link string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", link, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", link, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %d", link, resp.StatusCode)
	}
	return resp, nil
}

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

func isPDFLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}

var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Form:     true,
	atom.Aside:    true,
}

var blockElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.Li:         true,
	atom.Blockquote: true,
}

// extractText collects the text of paragraph-like elements, one block per
// line, ignoring navigation and script content.
func extractText(doc *html.Node) string {
	var blocks []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.DataAtom] {
				return
			}
			if blockElements[n.DataAtom] {
				if t := collapse(nodeText(n)); t != "" {
					blocks = append(blocks, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(blocks, "\n")
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		case n.Type == html.ElementNode && skipElements[n.DataAtom]:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func pdfText(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	return collapse(string(b)), nil
}
