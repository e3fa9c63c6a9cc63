package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/omaremad10/nivuus-agent/internal/httpkit"
)

// browserUserAgent is sent because the HTML endpoint serves an empty
// page to unknown agents.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DuckDuckGo implements the Provider interface by scraping the
// DuckDuckGo HTML front end. It needs no API key.
type DuckDuckGo struct {
	endpoint   string
	maxResults int
	httpClient *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo provider for endpoint (normally
// https://html.duckduckgo.com/html/).
func NewDuckDuckGo(endpoint string, maxResults int, timeout time.Duration, opts ...httpkit.ClientOption) *DuckDuckGo {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := []httpkit.ClientOption{
		httpkit.WithTimeout(timeout),
		httpkit.WithUserAgent(browserUserAgent),
	}
	return &DuckDuckGo{
		endpoint:   endpoint,
		maxResults: maxResults,
		httpClient: httpkit.NewClient(append(base, opts...)...),
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := opts.Count
	if count <= 0 || count > d.maxResults {
		count = d.maxResults
	}

	reqURL := d.endpoint + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	lang := "en-US,en;q=0.9"
	if opts.Language != "" {
		lang = opts.Language + "," + lang
	}
	req.Header.Set("Accept-Language", lang)
	req.Header.Set("Referer", "https://duckduckgo.com/")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("duckduckgo: HTTP %d: %s", resp.StatusCode, body)
	}

	return parseDuckDuckGo(resp.Body, count)
}

// parseDuckDuckGo extracts results from the HTML results page. A
// result is a result__a anchor followed by its result__snippet.
func parseDuckDuckGo(r io.Reader, limit int) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse html: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) > limit {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, Result{
					Title: collapseSpace(textContent(n)),
					URL:   unwrapRedirect(attr(n, "href")),
				})
			case hasClass(n, "result__snippet") && len(results) > 0:
				last := &results[len(results)-1]
				if last.Snippet == "" {
					last.Snippet = collapseSpace(textContent(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// unwrapRedirect turns //duckduckgo.com/l/?uddg=<target> links into the
// target URL. Other links are returned unchanged.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && u.Path == "/l/" {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
