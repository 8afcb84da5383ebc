package speech

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

// HTTPProcessor talks to the core speech-engine service over HTTP.
type HTTPProcessor struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPProcessor creates a speech processor client for the given
// core-engine base URL.
func NewHTTPProcessor(baseURL string, timeout time.Duration) *HTTPProcessor {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProcessor{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type textResponse struct {
	Text string `json:"text"`
}

// Transcribe sends one audio chunk to the transcription endpoint.
func (p *HTTPProcessor) Transcribe(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/speech/transcribe", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription failed: status %d", resp.StatusCode)
	}

	var out textResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return out.Text, nil
}

// GenerateResponse asks the dialog engine for a reply to an utterance.
func (p *HTTPProcessor) GenerateResponse(ctx context.Context, sessionID, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"text":       text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/speech/respond", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("dialog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dialog response failed: status %d", resp.StatusCode)
	}

	var out textResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode dialog response: %w", err)
	}
	return out.Text, nil
}

// Synthesize converts reply text into raw audio bytes.
func (p *HTTPProcessor) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/speech/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis failed: status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	return audio, nil
}
