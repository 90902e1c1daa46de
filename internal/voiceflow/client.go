package voiceflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voicebridge/whatsapp-voiceflow-bridge/pkg/logging"
)

const defaultBaseURL = "https://general-runtime.voiceflow.com"

// Config controls how the runtime client behaves.
type Config struct {
	BaseURL     string
	APIKey      string
	VersionID   string
	ProjectID   string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	HTTPClient  *http.Client
	Logger      *logging.Logger
	OnRetry     func(attempt int)
}

// Client talks to the Voiceflow general runtime API.
type Client struct {
	apiKey      string
	versionID   string
	projectID   string
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
	logger      *logging.Logger
	onRetry     func(attempt int)
}

// InteractOptions carries per-call session controls.
type InteractOptions struct {
	SessionID string
	Restart   bool
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("voiceflow: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	versionID := strings.TrimSpace(cfg.VersionID)
	if versionID == "" {
		versionID = "development"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiKey:      cfg.APIKey,
		versionID:   versionID,
		projectID:   strings.TrimSpace(cfg.ProjectID),
		baseURL:     baseURL,
		httpClient:  httpClient,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
		onRetry:     cfg.OnRetry,
	}, nil
}

// Interact advances the conversation for the given user and returns the
// runtime's reply traces. Transient failures (network errors, non-2xx
// statuses, empty bodies) are retried with exponential backoff; the last
// error is returned once attempts are exhausted.
func (c *Client) Interact(ctx context.Context, userID string, action Action, opts InteractOptions) ([]Trace, error) {
	body, err := json.Marshal(interactRequest{
		Action: action,
		Config: interactConfig{
			TTS:       false,
			StripSSML: true,
			Restart:   opts.Restart,
			SessionID: opts.SessionID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("voiceflow: marshal interact request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/state/user/%s/interact", c.baseURL, url.PathEscape(userID))

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if c.onRetry != nil {
				c.onRetry(attempt)
			}
			if err := c.sleep(ctx, attempt-2); err != nil {
				return nil, err
			}
		}

		traces, err := c.interactOnce(ctx, endpoint, body)
		if err == nil {
			return traces, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.logger.Warn("voiceflow interact attempt failed",
			"attempt", attempt,
			"user_id", userID,
			"error", err,
		)
	}
	return nil, fmt.Errorf("voiceflow: interact failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) interactOnce(ctx context.Context, endpoint string, body []byte) ([]Trace, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voiceflow: build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voiceflow: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voiceflow: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("voiceflow: status %d: %s", resp.StatusCode, truncateBody(data))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("voiceflow: empty response body")
	}

	var traces []Trace
	if err := json.Unmarshal(data, &traces); err != nil {
		return nil, fmt.Errorf("voiceflow: unmarshal traces: %w", err)
	}
	return traces, nil
}

// PatchVariables forces a session restart for the user by patching the
// runtime's stored state with a fresh session id.
func (c *Client) PatchVariables(ctx context.Context, userID, sessionID string) error {
	body, err := json.Marshal(variablesPatch{
		UserID:    userID,
		Restart:   true,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("voiceflow: marshal variables patch: %w", err)
	}

	endpoint := fmt.Sprintf("%s/state/user/%s/variables", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("voiceflow: build variables request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("voiceflow: patch variables: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("voiceflow: patch variables status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("versionID", c.versionID)
	if c.projectID != "" {
		req.Header.Set("projectID", c.projectID)
	}
}

func (c *Client) sleep(ctx context.Context, exponent int) error {
	if exponent < 0 {
		exponent = 0
	}
	delay := c.backoff * time.Duration(1<<exponent)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncateBody(data []byte) string {
	const max = 256
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}

type interactRequest struct {
	Action Action         `json:"action"`
	Config interactConfig `json:"config"`
}

type interactConfig struct {
	TTS       bool   `json:"tts"`
	StripSSML bool   `json:"stripSSML"`
	Restart   bool   `json:"restart,omitempty"`
	SessionID string `json:"sessionID,omitempty"`
}

type variablesPatch struct {
	UserID    string `json:"user_id"`
	Restart   bool   `json:"restart"`
	SessionID string `json:"sessionID"`
}
