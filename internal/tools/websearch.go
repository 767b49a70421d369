package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avetisov/parley/internal/executor"
)

const (
	defaultSearchBaseURL = "https://api.tavily.com"
	defaultSearchTimeout = 30 * time.Second
	maxSearchResults     = 5
)

// SearchClient talks to the Tavily search API.
type SearchClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSearchClient creates a search client against the production endpoint.
func NewSearchClient(apiKey string) *SearchClient {
	return NewSearchClientWithBaseURL(apiKey, defaultSearchBaseURL)
}

// NewSearchClientWithBaseURL creates a search client against a custom
// endpoint. Used in tests.
func NewSearchClientWithBaseURL(apiKey, baseURL string) *SearchClient {
	return &SearchClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultSearchTimeout,
		},
	}
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs a query and returns a plain-text digest suitable for feeding
// back to a model: a short answer summary followed by numbered sources.
func (c *SearchClient) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		MaxResults:    maxSearchResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var sr searchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return formatResults(query, sr), nil
}

func formatResults(query string, sr searchResponse) string {
	var b strings.Builder
	if sr.Answer != "" {
		b.WriteString("Summary: ")
		b.WriteString(sr.Answer)
		b.WriteString("\n\n")
	}
	if len(sr.Results) == 0 {
		fmt.Fprintf(&b, "No results found for %q.", query)
		return b.String()
	}
	b.WriteString("Sources:\n")
	for i, r := range sr.Results {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(r.Content, 300))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// WebSearch returns the web search tool backed by the given client.
func WebSearch(client *SearchClient) executor.Tool {
	return executor.Tool{
		Name:        "web_search",
		Description: "Search the web for current information. Use for questions about recent events, facts that change over time, or anything not in training data.",
		Schema: &executor.Schema{
			Type: "object",
			Properties: map[string]executor.SchemaProperty{
				"query": {Type: "string", Description: "Search query"},
			},
			Required: []string{"query"},
		},
		Run: func(ctx context.Context, args string) (string, error) {
			var in struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal([]byte(args), &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			if strings.TrimSpace(in.Query) == "" {
				return "", fmt.Errorf("query must not be empty")
			}
			return client.Search(ctx, in.Query)
		},
	}
}
