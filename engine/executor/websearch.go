package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type searchResult struct {
	Title       string
	URL         string
	Description string
}

// webSearch tries Brave, then Tavily, then an unauthenticated DuckDuckGo
// fallback, returning the first provider that succeeds. Providers without
// a configured API key are skipped.
func (e *Executor) webSearch(ctx context.Context, query string, maxResults int) (string, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	var providers []func(context.Context, string, int) ([]searchResult, error)
	if e.webSearchCfg.BraveAPIKey != "" {
		providers = append(providers, e.braveSearch)
	}
	if e.webSearchCfg.TavilyAPIKey != "" {
		providers = append(providers, e.tavilySearch)
	}
	providers = append(providers, e.duckDuckGoSearch)

	var lastErr error
	for _, provider := range providers {
		results, err := provider(ctx, query, maxResults)
		if err != nil {
			lastErr = err
			continue
		}
		return formatSearchResults(results), nil
	}
	return "", fmt.Errorf("all web search providers failed: %w", lastErr)
}

func formatSearchResults(results []searchResult) string {
	lines := make([]string, 0, len(results))
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s / %s / %s", i+1, r.Title, r.URL, r.Description))
	}
	return strings.Join(lines, "\n")
}

type braveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (e *Executor) braveSearch(ctx context.Context, query string, maxResults int) ([]searchResult, error) {
	var out braveSearchResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetHeader("X-Subscription-Token", e.webSearchCfg.BraveAPIKey).
		SetQueryParam("q", query).
		SetQueryParam("count", strconv.Itoa(maxResults)).
		SetResult(&out).
		Get("https://api.search.brave.com/res/v1/web/search")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("brave search: status %d", resp.StatusCode())
	}
	results := make([]searchResult, 0, len(out.Web.Results))
	for _, r := range out.Web.Results {
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return results, nil
}

type tavilySearchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (e *Executor) tavilySearch(ctx context.Context, query string, maxResults int) ([]searchResult, error) {
	var out tavilySearchResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"api_key":     e.webSearchCfg.TavilyAPIKey,
			"query":       query,
			"max_results": maxResults,
		}).
		SetResult(&out).
		Post("https://api.tavily.com/search")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tavily search: status %d", resp.StatusCode())
	}
	results := make([]searchResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Description: r.Content})
	}
	return results, nil
}

type duckDuckGoResponse struct {
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// duckDuckGoSearch uses the keyless Instant Answer API as a last-resort
// fallback; it returns related topics, not a full web index, which is why
// it is always tried last.
func (e *Executor) duckDuckGoSearch(ctx context.Context, query string, maxResults int) ([]searchResult, error) {
	var out duckDuckGoResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("format", "json").
		SetQueryParam("no_html", "1").
		SetResult(&out).
		Get("https://api.duckduckgo.com/")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("duckduckgo search: status %d", resp.StatusCode())
	}
	results := make([]searchResult, 0, maxResults)
	for _, t := range out.RelatedTopics {
		if t.Text == "" {
			continue
		}
		results = append(results, searchResult{Title: t.Text, URL: t.FirstURL, Description: t.Text})
		if len(results) >= maxResults {
			break
		}
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("duckduckgo search: no results")
	}
	return results, nil
}
