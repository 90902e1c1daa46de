package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com"
	defaultAPIVersion   = "v17.0"
	defaultHTTPTimeout  = 10 * time.Second

	// Voice notes are small; cap downloads defensively anyway.
	maxMediaDownloadBytes = 32 << 20
)

// Client sends messages and fetches media via the WhatsApp Cloud (Graph) API.
type Client struct {
	token      string
	apiVersion string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Graph API client for the given bearer token.
func NewClient(token, apiVersion string) *Client {
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	return &Client{
		token:      token,
		apiVersion: apiVersion,
		baseURL:    defaultGraphAPIBase,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetBaseURL overrides the Graph API base URL (useful for testing).
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// SendMessage posts one message body to /{version}/{phoneNumberID}/messages.
func (c *Client) SendMessage(ctx context.Context, phoneNumberID string, msg *Message) (*SendResponse, error) {
	if msg == nil {
		return nil, errors.New("whatsapp: nil message")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("whatsapp: unmarshal response: %w", err)
	}
	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("whatsapp: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return &sendResp, fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return &sendResp, nil
}

// ProbeMediaSize issues a metadata-only request for the given URL and returns
// its Content-Length, or an error when the probe fails or the size is unknown.
func (c *Client) ProbeMediaSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("whatsapp: create probe request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("whatsapp: probe media: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("whatsapp: probe media status %d", resp.StatusCode)
	}
	size := resp.ContentLength
	if size <= 0 {
		if v := resp.Header.Get("Content-Length"); v != "" {
			size, _ = strconv.ParseInt(v, 10, 64)
		}
	}
	if size <= 0 {
		return 0, errors.New("whatsapp: media size unknown")
	}
	return size, nil
}

// GetMediaInfo resolves a media id to its downloadable URL and mime type.
func (c *Client) GetMediaInfo(ctx context.Context, mediaID string) (*MediaInfo, error) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create media info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: fetch media info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read media info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whatsapp: media info status %d: %s", resp.StatusCode, string(body))
	}

	var info MediaInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("whatsapp: unmarshal media info: %w", err)
	}
	if info.URL == "" {
		return nil, errors.New("whatsapp: media info has no url")
	}
	return &info, nil
}

// DownloadMedia fetches the bytes of an inbound media object. The returned
// mime type comes from the media metadata, not the download response.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	info, err := c.GetMediaInfo(ctx, mediaID)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: create media download request: %w", err)
	}
	// Media URLs are served by the Graph CDN and require the same bearer token.
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("whatsapp: media download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaDownloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("whatsapp: read media body: %w", err)
	}
	return data, info.MimeType, nil
}
