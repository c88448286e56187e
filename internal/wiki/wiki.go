// Package wiki finds and downloads Wikipedia articles. It prefers the
// MediaWiki API's plain-text extracts and falls back to scraping the
// article HTML when the extract comes back empty.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultAPIBase  = "https://en.wikipedia.org/w/api.php"
	defaultPageBase = "https://en.wikipedia.org/wiki/"
	userAgent       = "vaani/1.0 (article ingestion; github.com/kalambet/vaani)"

	searchLimit = 5
)

var (
	citationRe   = regexp.MustCompile(`\[\d+\]|\[note \d+\]|\[(?i:citation needed)\]`)
	headingRe    = regexp.MustCompile(`={2,}\s*.*?\s*={2,}`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(` {2,}`)
	slugStripRe  = regexp.MustCompile(`[^\w\s-]`)
	slugJoinRe   = regexp.MustCompile(`[\s-]+`)
)

// Article is a downloaded Wikipedia article.
type Article struct {
	Title string
	URL   string
	Text  string
}

// Client fetches articles from Wikipedia.
type Client struct {
	apiBase    string
	pageBase   string
	httpClient *http.Client
}

// New creates a Client against the live Wikipedia endpoints.
func New() *Client {
	return NewWithBase(defaultAPIBase, defaultPageBase)
}

// NewWithBase creates a Client against custom API and page URLs.
func NewWithBase(apiBase, pageBase string) *Client {
	return &Client{
		apiBase:  apiBase,
		pageBase: pageBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Search returns the title of the best-matching article for a query.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {fmt.Sprint(searchLimit)},
		"format":   {"json"},
	}

	var result struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := c.getJSON(ctx, params, &result); err != nil {
		return "", fmt.Errorf("searching for %q: %w", query, err)
	}
	if len(result.Query.Search) == 0 {
		return "", fmt.Errorf("no articles found for %q", query)
	}
	return result.Query.Search[0].Title, nil
}

// Extract fetches the plain-text body of an article by title. When the
// extract is empty it scrapes the article page instead.
func (c *Client) Extract(ctx context.Context, title string) (Article, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"explaintext": {"1"},
		"redirects":   {"1"},
		"titles":      {title},
		"format":      {"json"},
	}

	var result struct {
		Query struct {
			Pages map[string]struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
				Missing *any   `json:"missing"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.getJSON(ctx, params, &result); err != nil {
		return Article{}, fmt.Errorf("fetching extract for %q: %w", title, err)
	}

	article := Article{Title: title}
	for _, page := range result.Query.Pages {
		if page.Missing != nil {
			return Article{}, fmt.Errorf("article %q does not exist", title)
		}
		if page.Title != "" {
			article.Title = page.Title
		}
		article.Text = page.Extract
	}
	article.URL = c.pageBase + url.PathEscape(strings.ReplaceAll(article.Title, " ", "_"))

	if strings.TrimSpace(article.Text) == "" {
		text, err := c.scrapePage(ctx, article.URL)
		if err != nil {
			return Article{}, fmt.Errorf("article %q has no extract and scraping failed: %w", title, err)
		}
		article.Text = text
	}

	article.Text = CleanText(article.Text)
	if article.Text == "" {
		return Article{}, fmt.Errorf("article %q came back empty", title)
	}
	return article, nil
}

// Fetch searches for the closest article to a query and downloads it.
func (c *Client) Fetch(ctx context.Context, query string) (Article, error) {
	title, err := c.Search(ctx, query)
	if err != nil {
		return Article{}, err
	}
	return c.Extract(ctx, title)
}

func (c *Client) getJSON(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// scrapePage pulls paragraph text out of the article HTML. Content
// lives inside div#mw-content-text on every Wikipedia page.
func (c *Client) scrapePage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}

	content := findByID(doc, "mw-content-text")
	if content == nil {
		return "", fmt.Errorf("could not locate article content on the page")
	}

	var paragraphs []string
	collectParagraphs(content, &paragraphs)
	text := citationRe.ReplaceAllString(strings.Join(paragraphs, "\n\n"), "")
	return strings.TrimSpace(text), nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if attr.Key == "id" && attr.Val == id {
				return n
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func collectParagraphs(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode && n.Data == "p" {
		if text := strings.TrimSpace(nodeText(n)); text != "" {
			*out = append(*out, text)
		}
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectParagraphs(child, out)
	}
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		b.WriteString(nodeText(child))
	}
	return b.String()
}

// CleanText strips section headings and collapses whitespace runs.
func CleanText(text string) string {
	text = headingRe.ReplaceAllString(text, "")
	text = citationRe.ReplaceAllString(text, "")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Slug converts an article title into a lowercase filename slug.
func Slug(title string) string {
	slug := slugStripRe.ReplaceAllString(strings.ToLower(title), "")
	return slugJoinRe.ReplaceAllString(strings.TrimSpace(slug), "_")
}
