// Package asr is a client for the speech recognition service, which
// exposes transcription over a multipart upload endpoint.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Transcription turnaround depends on audio length, so the client
// allows far more than a typical API timeout.
const defaultTimeout = 120 * time.Second

// Client talks to the ASR HTTP service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates an ASR client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Transcript is the service's response to a transcription request.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// IsRunning reports whether the ASR service responds to a health probe.
func (c *Client) IsRunning(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe uploads audio and returns the recognized text. An empty
// transcription is an error; there is nothing downstream can do with it.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (Transcript, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Transcript{}, fmt.Errorf("creating form file: %w", err)
	}
	n, err := io.Copy(part, audio)
	if err != nil {
		return Transcript{}, fmt.Errorf("reading audio: %w", err)
	}
	if n == 0 {
		return Transcript{}, fmt.Errorf("audio file is empty")
	}
	if err := mw.Close(); err != nil {
		return Transcript{}, fmt.Errorf("finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &buf)
	if err != nil {
		return Transcript{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Transcript{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result Transcript
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Transcript{}, fmt.Errorf("decoding response: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)
	if result.Text == "" {
		return Transcript{}, fmt.Errorf("service returned an empty transcription")
	}
	return result, nil
}
