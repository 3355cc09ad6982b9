package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/quintetdev/quintet/internal/config"
)

// APIRunner calls a provider's HTTP API directly instead of spawning a
// CLI. API mode is stateless: capability profiles, session directories,
// and ContinueSession have no effect, so roles get no filesystem access
// and no conversation continuity. Useful for planning-heavy tasks and
// for environments where no engine CLI is installed.
type APIRunner struct {
	cfg    config.Executor
	apiKey string
	client *http.Client
}

// NewAPIRunner creates a runner that calls the configured provider.
func NewAPIRunner(cfg config.Executor) (*APIRunner, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
	}

	timeout := time.Duration(cfg.DefaultTimeout()) * time.Second

	return &APIRunner{
		cfg:    cfg,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (r *APIRunner) Name() string { return r.cfg.Provider + "-api" }

// Invoke sends the prompt to the configured provider.
func (r *APIRunner) Invoke(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	switch r.cfg.Provider {
	case "openai":
		return r.invokeOpenAI(ctx, req, start)
	case "anthropic":
		return r.invokeAnthropic(ctx, req, start)
	case "google":
		return r.invokeGoogle(ctx, req, start)
	default:
		return nil, fmt.Errorf("unsupported API provider: %s", r.cfg.Provider)
	}
}

// post sends one JSON request and hands back the raw body. Transport and
// non-200 failures come back as a Response, never as an error — the stage
// runner treats them like any other engine failure.
func (r *APIRunner) post(ctx context.Context, url string, headers map[string]string, body any, start time.Time) ([]byte, *Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, &Response{
			ExitCode: -1,
			Duration: time.Since(start),
			Err:      fmt.Errorf("API call failed: %w", err),
		}, nil
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &Response{
			Output:   string(respBody),
			ExitCode: httpResp.StatusCode,
			Duration: time.Since(start),
			Err:      fmt.Errorf("API returned status %d: %s", httpResp.StatusCode, string(respBody)),
		}, nil
	}

	return respBody, nil, nil
}

func (r *APIRunner) invokeOpenAI(ctx context.Context, req Request, start time.Time) (*Response, error) {
	body := map[string]any{
		"model": r.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens": 4096,
	}
	headers := map[string]string{"Authorization": "Bearer " + r.apiKey}

	respBody, failed, err := r.post(ctx, "https://api.openai.com/v1/chat/completions", headers, body, start)
	if err != nil || failed != nil {
		return failed, err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	output := ""
	if len(result.Choices) > 0 {
		output = result.Choices[0].Message.Content
	}
	return &Response{Output: output, Duration: time.Since(start)}, nil
}

func (r *APIRunner) invokeAnthropic(ctx context.Context, req Request, start time.Time) (*Response, error) {
	body := map[string]any{
		"model":      r.cfg.Model,
		"max_tokens": 4096,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	headers := map[string]string{
		"x-api-key":         r.apiKey,
		"anthropic-version": "2023-06-01",
	}

	respBody, failed, err := r.post(ctx, "https://api.anthropic.com/v1/messages", headers, body, start)
	if err != nil || failed != nil {
		return failed, err
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	output := ""
	if len(result.Content) > 0 {
		output = result.Content[0].Text
	}
	return &Response{Output: output, Duration: time.Since(start)}, nil
}

func (r *APIRunner) invokeGoogle(ctx context.Context, req Request, start time.Time) (*Response, error) {
	model := r.cfg.Model
	if model == "" {
		model = "gemini-2.5-pro"
	}
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", model, r.apiKey)

	body := map[string]any{
		"contents": []map[string]any{
			{
				"parts": []map[string]string{
					{"text": req.Prompt},
				},
			},
		},
	}

	respBody, failed, err := r.post(ctx, url, nil, body, start)
	if err != nil || failed != nil {
		return failed, err
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	output := ""
	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		output = result.Candidates[0].Content.Parts[0].Text
	}
	return &Response{Output: output, Duration: time.Since(start)}, nil
}

// NewRunner picks the runner matching the executor config: an APIRunner
// in api mode, a CLIRunner otherwise.
func NewRunner(cfg config.Executor) (Runner, error) {
	if cfg.IsAPI() {
		return NewAPIRunner(cfg)
	}
	if !CLIAvailable(cfg.Cmd) {
		return nil, fmt.Errorf("engine %q not found in PATH", cfg.Cmd)
	}
	return NewCLIRunner(cfg), nil
}
