package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

// Client talks to the Azure Translator v3 REST API.
// Safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Azure Translator client
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		config:     config,
		baseURL:    resolveBaseURL(config.Endpoint),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// resolveBaseURL returns the URL the API paths are appended to. Custom domain
// resources (*.cognitiveservices.azure.com) serve the translator under
// /translator/text/v3.0; the global endpoint serves it at the root.
func resolveBaseURL(endpoint string) string {
	base := strings.TrimRight(endpoint, "/")
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	if strings.HasSuffix(strings.ToLower(u.Hostname()), customDomainSuffix) && u.Path == "" {
		return base + customDomainPath
	}
	return base
}

// Translate translates texts from one language to another in a single
// request. An empty from lets the service detect the source language. The
// result has one entry per input text, in input order.
func (c *Client) Translate(ctx context.Context, texts []string, from, to string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if to == "" {
		return nil, fmt.Errorf("target language is required")
	}

	query := url.Values{}
	query.Set("api-version", apiVersion)
	query.Set("to", to)
	if from != "" {
		query.Set("from", from)
	}

	payload := make([]textItem, len(texts))
	for i, text := range texts {
		payload[i] = textItem{Text: text}
	}

	var results []translationResult
	if err := c.makeRequest(ctx, http.MethodPost, "/translate?"+query.Encode(), payload, &results); err != nil {
		return nil, fmt.Errorf("translate %d texts %s->%s: %w", len(texts), fromOrAuto(from), to, err)
	}

	if len(results) != len(texts) {
		return nil, fmt.Errorf("translation count mismatch: sent %d texts, got %d results", len(texts), len(results))
	}

	translated := make([]string, len(results))
	for i, result := range results {
		if len(result.Translations) == 0 {
			return nil, fmt.Errorf("no translation returned for text %d", i)
		}
		translated[i] = result.Translations[0].Text
	}
	return translated, nil
}

// makeRequest makes a raw HTTP request to the translator API
func (c *Client) makeRequest(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.config.GetHeaders() {
		req.Header.Set(key, value)
	}
	traceID := uuid.NewString()
	req.Header.Set("X-ClientTraceId", traceID)

	log.Debug("Azure request %s %s (trace %s)", method, path, traceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return fmt.Errorf("request timed out: %w", err)
		}
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: string(responseBody)}
		var apiErr errorResponse
		if json.Unmarshal(responseBody, &apiErr) == nil && apiErr.Error != nil {
			statusErr.Code = apiErr.Error.Code
			statusErr.Message = apiErr.Error.Message
		}
		return statusErr
	}

	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func fromOrAuto(from string) string {
	if from == "" {
		return "auto"
	}
	return from
}
