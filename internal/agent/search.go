package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Document is one search hit from the program corpus.
type Document struct {
	FileID   string
	Filename string
	Score    float64
	Text     string
}

// DocumentSearcher looks up program documents relevant to a query.
type DocumentSearcher interface {
	Search(ctx context.Context, query string) ([]Document, error)
}

const (
	defaultSearchBaseURL    = "https://api.openai.com/v1"
	defaultSearchMaxResults = 5
)

// SearchOptions configures an OpenAIVectorSearcher.
type SearchOptions struct {
	APIKey        string
	BaseURL       string
	VectorStoreID string
	MaxResults    int
	Timeout       time.Duration
}

// OpenAIVectorSearcher queries an OpenAI vector store.
type OpenAIVectorSearcher struct {
	httpClient    *http.Client
	apiKey        string
	baseURL       string
	vectorStoreID string
	maxResults    int
}

func NewOpenAIVectorSearcher(opts SearchOptions) *OpenAIVectorSearcher {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultSearchBaseURL
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchMaxResults
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIVectorSearcher{
		httpClient:    &http.Client{Timeout: timeout},
		apiKey:        opts.APIKey,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		vectorStoreID: opts.VectorStoreID,
		maxResults:    maxResults,
	}
}

type searchRequest struct {
	Query         string `json:"query"`
	MaxNumResults int    `json:"max_num_results"`
}

type searchResponse struct {
	Data []struct {
		FileID   string  `json:"file_id"`
		Filename string  `json:"filename"`
		Score    float64 `json:"score"`
		Content  []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

func (s *OpenAIVectorSearcher) Search(ctx context.Context, query string) ([]Document, error) {
	body, err := json.Marshal(searchRequest{Query: query, MaxNumResults: s.maxResults})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	url := fmt.Sprintf("%s/vector_stores/%s/search", s.baseURL, s.vectorStoreID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching vector store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("vector store search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	docs := make([]Document, 0, len(decoded.Data))
	for _, hit := range decoded.Data {
		var text []string
		for _, c := range hit.Content {
			if c.Type == "text" {
				text = append(text, c.Text)
			}
		}
		docs = append(docs, Document{
			FileID:   hit.FileID,
			Filename: hit.Filename,
			Score:    hit.Score,
			Text:     strings.Join(text, "\n"),
		})
	}
	return docs, nil
}

// formatDocuments renders search hits as a system message body.
func formatDocuments(docs []Document) string {
	var b strings.Builder
	b.WriteString("Program documents relevant to this user:\n")
	for _, d := range docs {
		name := d.Filename
		if name == "" {
			name = d.FileID
		}
		fmt.Fprintf(&b, "\n[%s]\n%s\n", name, d.Text)
	}
	return b.String()
}
