package factcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"reportjudge/internal/config"
	"reportjudge/internal/httpx"
)

// ErrEmptyPage is returned when a scraper answers but yields no page text.
var ErrEmptyPage = errors.New("scraper returned no content")

// Fetcher turns a URL into page text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

const defaultJinaBaseURL = "https://r.jina.ai"

// JinaFetcher reads pages through the Jina Reader API.
type JinaFetcher struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (j *JinaFetcher) Fetch(ctx context.Context, url string) (string, error) {
	base := strings.TrimRight(j.BaseURL, "/")
	if base == "" {
		base = defaultJinaBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Timeout", "60")
	if j.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.APIKey)
	}

	client := j.HTTPClient
	if client == nil {
		client = httpx.ExternalHTTPClient()
	}
	body, err := doRequest(client, req)
	if err != nil {
		return "", fmt.Errorf("jina reader %s: %w", url, err)
	}
	content := gjson.GetBytes(body, "data.content").String()
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("jina reader %s: %w", url, ErrEmptyPage)
	}
	return content, nil
}

// FirecrawlFetcher scrapes pages to markdown through the Firecrawl v1 API.
type FirecrawlFetcher struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type firecrawlScrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
	WaitFor int      `json:"waitFor"`
	Timeout int      `json:"timeout"`
}

func (f *FirecrawlFetcher) Fetch(ctx context.Context, url string) (string, error) {
	payload, err := json.Marshal(firecrawlScrapeRequest{
		URL:     url,
		Formats: []string{"markdown"},
		WaitFor: 1000,
		Timeout: 20000,
	})
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(f.BaseURL, "/") + "/v1/scrape"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.APIKey)

	client := f.HTTPClient
	if client == nil {
		client = httpx.ExternalHTTPClient()
	}
	body, err := doRequest(client, req)
	if err != nil {
		return "", fmt.Errorf("firecrawl scrape %s: %w", url, err)
	}
	parsed := gjson.ParseBytes(body)
	if s := parsed.Get("success"); s.Exists() && !s.Bool() {
		return "", fmt.Errorf("firecrawl scrape %s: %s", url, parsed.Get("error").String())
	}
	if code := parsed.Get("data.metadata.statusCode"); code.Exists() && code.Int() != http.StatusOK {
		return "", fmt.Errorf("firecrawl scrape %s: page status %d", url, code.Int())
	}
	markdown := parsed.Get("data.markdown").String()
	if strings.TrimSpace(markdown) == "" {
		return "", fmt.Errorf("firecrawl scrape %s: %w", url, ErrEmptyPage)
	}
	return RemoveLinkTargets(markdown), nil
}

var linkTarget = regexp.MustCompile(`\(https?://[^)]*\)`)

// RemoveLinkTargets drops "(http...)" link targets and keeps the link text.
func RemoveLinkTargets(markdown string) string {
	return linkTarget.ReplaceAllString(markdown, "")
}

func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}
	return body, nil
}

// NewFetcher returns the scraper named by provider, falling back to cfg.ScrapeProvider.
func NewFetcher(cfg config.Config, provider string) (Fetcher, error) {
	if provider == "" {
		provider = cfg.ScrapeProvider
	}
	switch provider {
	case "", "jina":
		return &JinaFetcher{APIKey: cfg.JinaAPIKey}, nil
	case "firecrawl":
		if cfg.FirecrawlAPIKey == "" {
			return nil, fmt.Errorf("firecrawl_api_key is required for the firecrawl provider")
		}
		return &FirecrawlFetcher{APIKey: cfg.FirecrawlAPIKey, BaseURL: cfg.FirecrawlBaseURL}, nil
	default:
		return nil, fmt.Errorf("unsupported scrape provider %q", provider)
	}
}
