// Package translate is a client for the Sarvam translation API, used to
// bring Indic-language questions into English before retrieval.
package translate

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

const defaultTimeout = 30 * time.Second

// Client talks to the Sarvam translation endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a translation client. The API key may be empty as long as
// every request is for English source text, which never reaches the API.
func New(apiKey, baseURL, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

type translateRequest struct {
	Input               string `json:"input"`
	SourceLanguageCode  string `json:"source_language_code"`
	TargetLanguageCode  string `json:"target_language_code"`
	Model               string `json:"model"`
	Mode                string `json:"mode"`
	EnablePreprocessing bool   `json:"enable_preprocessing"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

// ToEnglish translates text from the given BCP-47 source language into
// English. English source text is returned unchanged without touching
// the API.
func (c *Client) ToEnglish(ctx context.Context, text, sourceLanguage string) (string, error) {
	if strings.HasPrefix(sourceLanguage, "en") {
		return text, nil
	}
	if c.apiKey == "" {
		return "", fmt.Errorf("sarvam API key is not configured")
	}

	body, err := json.Marshal(translateRequest{
		Input:               text,
		SourceLanguageCode:  sourceLanguage,
		TargetLanguageCode:  "en-IN",
		Model:               c.model,
		Mode:                "formal",
		EnablePreprocessing: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-subscription-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if result.TranslatedText == "" {
		return "", fmt.Errorf("translation came back empty")
	}
	return result.TranslatedText, nil
}
