package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	serperURL = "https://google.serper.dev/search"
	tavilyURL = "https://api.tavily.com/search"
)

// WebSearcher is the web research capability used by enrichment and
// sourcing: snippet search, URL search, and page fetching.
type WebSearcher interface {
	SearchText(ctx context.Context, query string, maxChars int) (string, error)
	SearchURLs(ctx context.Context, query string, maxResults int) ([]string, error)
	FetchText(ctx context.Context, pageURL string, maxChars int) (string, error)
}

// SearchClient routes queries through Serper.dev first, then Tavily.
// Without either key, searches return nothing and enrichment degrades to
// whatever the company record already holds.
type SearchClient struct {
	SerperKey string
	TavilyKey string
	HTTP      *http.Client
	Logger    *log.Logger
}

func NewSearchClient(serperKey, tavilyKey string, logger *log.Logger) *SearchClient {
	if logger == nil {
		logger = log.Default()
	}
	return &SearchClient{
		SerperKey: serperKey,
		TavilyKey: tavilyKey,
		HTTP:      &http.Client{Timeout: 12 * time.Second},
		Logger:    logger,
	}
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// SearchText returns concatenated snippet text for a query, capped at
// maxChars.
func (s *SearchClient) SearchText(ctx context.Context, query string, maxChars int) (string, error) {
	if s.SerperKey != "" {
		var data serperResponse
		if err := s.postJSON(ctx, serperURL, map[string]interface{}{"q": query, "num": 5},
			map[string]string{"X-API-KEY": s.SerperKey}, &data); err == nil {
			var snippets []string
			for _, r := range data.Organic {
				switch {
				case r.Snippet != "":
					snippets = append(snippets, fmt.Sprintf("[Result] %s: %s", r.Title, r.Snippet))
				case r.Title != "":
					snippets = append(snippets, "[Result] "+r.Title)
				}
			}
			if combined := strings.Join(snippets, " | "); combined != "" {
				return capChars(combined, maxChars), nil
			}
		} else {
			s.Logger.Printf("Serper search failed for %q: %v", query, err)
		}
	}

	if s.TavilyKey != "" {
		var data tavilyResponse
		if err := s.postJSON(ctx, tavilyURL, map[string]interface{}{"query": query, "max_results": 5},
			map[string]string{"Authorization": "Bearer " + s.TavilyKey}, &data); err == nil {
			var snippets []string
			for _, r := range data.Results {
				switch {
				case r.Content != "":
					snippets = append(snippets, fmt.Sprintf("[Result] %s: %s", r.Title, r.Content))
				case r.Title != "":
					snippets = append(snippets, "[Result] "+r.Title)
				}
			}
			if combined := strings.Join(snippets, " | "); combined != "" {
				return capChars(combined, maxChars), nil
			}
		} else {
			s.Logger.Printf("Tavily search failed for %q: %v", query, err)
		}
	}

	return "", nil
}

// SearchURLs returns organic result links for a query.
func (s *SearchClient) SearchURLs(ctx context.Context, query string, maxResults int) ([]string, error) {
	if s.SerperKey != "" {
		var data serperResponse
		if err := s.postJSON(ctx, serperURL, map[string]interface{}{"q": query, "num": maxResults},
			map[string]string{"X-API-KEY": s.SerperKey}, &data); err == nil {
			var urls []string
			for _, r := range data.Organic {
				if r.Link != "" {
					urls = append(urls, r.Link)
				}
			}
			if len(urls) > 0 {
				if len(urls) > maxResults {
					urls = urls[:maxResults]
				}
				return urls, nil
			}
		}
	}

	if s.TavilyKey != "" {
		var data tavilyResponse
		if err := s.postJSON(ctx, tavilyURL, map[string]interface{}{"query": query, "max_results": maxResults},
			map[string]string{"Authorization": "Bearer " + s.TavilyKey}, &data); err == nil {
			var urls []string
			for _, r := range data.Results {
				if r.URL != "" {
					urls = append(urls, r.URL)
				}
			}
			if len(urls) > 0 {
				return urls, nil
			}
		}
	}

	return nil, nil
}

var (
	stripBlocksRe = regexp.MustCompile(`(?is)<(?:script|style|nav|footer|header|aside|form|noscript)[^>]*>.*?</(?:script|style|nav|footer|header|aside|form|noscript)>`)
	collapseWsRe  = regexp.MustCompile(`\s{2,}`)
)

// FetchText downloads a page and returns its tag-stripped text content.
func (s *SearchClient) FetchText(ctx context.Context, pageURL string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	text := StripHTML(string(raw))
	return capChars(text, maxChars), nil
}

// StripHTML removes script/style blocks and tags, leaving readable text.
func StripHTML(src string) string {
	src = stripBlocksRe.ReplaceAllString(src, " ")
	src = htmlTagRe.ReplaceAllString(src, " ")
	src = collapseWsRe.ReplaceAllString(src, " ")
	return strings.TrimSpace(src)
}

func (s *SearchClient) postJSON(ctx context.Context, endpoint string, payload interface{}, headers map[string]string, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("search provider returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func capChars(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

// Domains that are never a company's own website: registries, review
// aggregators, social networks, directories.
var registryDomains = map[string]bool{
	"npiregistry.cms.hhs.gov": true, "npiprofile.com": true, "npino.com": true,
	"npidb.org": true, "hipaaspace.com": true, "nppes.cms.hhs.gov": true,
	"healthgrades.com": true, "vitals.com": true, "webmd.com": true,
	"zocdoc.com": true, "ratemds.com": true, "doximity.com": true,
	"sharecare.com": true, "usnews.com": true,
	"facebook.com": true, "linkedin.com": true, "twitter.com": true,
	"instagram.com": true, "tiktok.com": true, "youtube.com": true,
	"reddit.com": true, "pinterest.com": true,
	"yelp.com": true, "bbb.org": true, "crunchbase.com": true,
	"bloomberg.com": true, "dnb.com": true, "zoominfo.com": true,
	"mapquest.com": true, "yellowpages.com": true, "manta.com": true,
	"buzzfile.com": true, "opencorporates.com": true, "sec.gov": true,
	"indeed.com": true, "glassdoor.com": true, "wikipedia.org": true,
	"openstreetmap.org": true, "google.com": true, "amazon.com": true,
	"trustpilot.com": true, "superpages.com": true, "citysearch.com": true,
	"angieslist.com": true, "thumbtack.com": true, "expertise.com": true,
	"birdeye.com": true,
}

// IsRegistryOrAggregator reports whether a URL points at a directory or
// registry rather than the company's own site.
func IsRegistryOrAggregator(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	if registryDomains[host] {
		return true
	}
	for d := range registryDomains {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

var legalSuffixRe = regexp.MustCompile(`(?i),?\s*(Professional\s+Corporation|Medical\s+Corporation|Corporation|Corp\.?|Incorporated|Inc\.?|Limited|Ltd\.?|PLLC\.?|LLC\.?|L\.?P\.?|P\.?C\.?|P\.?A\.?)\b`)

// CleanCompanyName strips legal suffixes and trailing punctuation so
// search queries match how the company presents itself.
func CleanCompanyName(name string) string {
	cleaned := legalSuffixRe.ReplaceAllString(name, "")
	return strings.Trim(cleaned, " ,.")
}

// DiscoverCompanyWebsite searches for a company's real website when the
// stored URL is missing or points at a registry. Returns "" when nothing
// plausible turns up.
func (s *SearchClient) DiscoverCompanyWebsite(ctx context.Context, companyName, location string) string {
	cleanName := CleanCompanyName(companyName)

	queries := []string{
		fmt.Sprintf("%s %s official website", cleanName, location),
		cleanName + " website",
	}
	for _, q := range queries {
		urls, _ := s.SearchURLs(ctx, q, 8)
		if candidate := bestWebsiteCandidate(urls); candidate != "" {
			return candidate
		}
	}

	// Very long names often search poorly; retry with the leading words.
	if words := strings.Fields(cleanName); len(words) > 3 {
		short := strings.Join(words[:3], " ")
		urls, _ := s.SearchURLs(ctx, fmt.Sprintf("%s %s website", short, location), 5)
		if candidate := bestWebsiteCandidate(urls); candidate != "" {
			return candidate
		}
	}
	return ""
}

func bestWebsiteCandidate(urls []string) string {
	for _, raw := range urls {
		if IsRegistryOrAggregator(raw) {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		// Homepages and shallow paths first.
		path := strings.Trim(u.Path, "/")
		if len(strings.Split(path, "/")) <= 2 {
			return u.Scheme + "://" + u.Host
		}
	}
	for _, raw := range urls {
		if !IsRegistryOrAggregator(raw) {
			if u, err := url.Parse(raw); err == nil {
				return u.Scheme + "://" + u.Host
			}
		}
	}
	return ""
}
