// Package fetch retrieves readable text from a web page. It guards
// against requests into private address space and extracts the main
// article content from the HTML.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrFetch wraps every failure of the content fetch: bad URLs, blocked
// addresses, network errors, and pages without enough content.
var ErrFetch = errors.New("content fetch failed")

const (
	// minContent is the fewest characters a page must yield to be usable.
	minContent = 100
	// articleMin is the threshold at which an <article> element wins
	// outright over the fallback selectors.
	articleMin = 500

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Fetcher retrieves and extracts page content.
type Fetcher struct {
	client   *http.Client
	resolver interface {
		LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	}
}

// New creates a fetcher with a 10 second request timeout.
func New() *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 10 * time.Second},
		resolver: net.DefaultResolver,
	}
}

// Fetch downloads the URL and returns its main text content. It fails
// with an error wrapping ErrFetch when the URL is disallowed, the
// request fails, or the page yields too little content.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := f.checkURL(ctx, rawURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: HTTP status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	content := ExtractMainContent(string(body))
	if len(content) < minContent {
		return "", fmt.Errorf("%w: insufficient content extracted", ErrFetch)
	}

	slog.Info("fetched content", "url", rawURL, "chars", len(content))
	return content, nil
}

// checkURL enforces the scheme and rejects hosts that resolve into
// loopback, private, or link-local address space.
func (f *Fetcher) checkURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must use http or https")
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("URL has no host")
	}

	addrs, err := f.resolver.LookupIPAddr(ctx, parsed.Hostname())
	if err != nil {
		return fmt.Errorf("resolve host: %v", err)
	}
	for _, addr := range addrs {
		if blockedIP(addr.IP) {
			return fmt.Errorf("host resolves to a blocked address %s", addr.IP)
		}
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// ExtractMainContent pulls readable text out of an HTML page. It
// prefers a substantial <article>, then the largest of the usual
// content containers, then all paragraph text joined together.
func ExtractMainContent(page string) string {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}

	if article := findElement(root, "article"); article != nil {
		if text := collapse(nodeText(article)); len(text) > articleMin {
			return text
		}
	}

	longest := ""
	for _, node := range contentContainers(root) {
		if text := nodeText(node); len(text) > len(longest) {
			longest = text
		}
	}

	if len(longest) < articleMin {
		var parts []string
		walk(root, func(n *html.Node) {
			if n.Type == html.ElementNode && n.Data == "p" {
				if text := collapse(nodeText(n)); text != "" {
					parts = append(parts, text)
				}
			}
		})
		if joined := strings.Join(parts, " "); len(joined) > len(longest) {
			longest = joined
		}
	}

	return collapse(longest)
}

// contentContainers collects elements that conventionally hold the main
// body of a page.
func contentContainers(root *html.Node) []*html.Node {
	classHints := []string{"content", "article", "post", "entry-content", "post-content"}
	var nodes []*html.Node
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if n.Data == "main" || n.Data == "section" {
			nodes = append(nodes, n)
			return
		}
		for _, attr := range n.Attr {
			if attr.Key != "class" {
				continue
			}
			for _, hint := range classHints {
				if strings.Contains(attr.Val, hint) {
					nodes = append(nodes, n)
					return
				}
			}
		}
	})
	return nodes
}

func findElement(root *html.Node, name string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.Data == name {
			found = n
		}
	})
	return found
}

// nodeText concatenates the text content below n, skipping scripts and
// styles.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
