// Package line is a minimal LINE Messaging API gateway: webhook signature
// verification, event parsing, reply delivery and profile lookup.
package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIBase is the production Messaging API endpoint.
const DefaultAPIBase = "https://api.line.me"

// Client is a minimal LINE Messaging API client.
type Client struct {
	apiBase     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a LINE client. apiBase is overridable for tests;
// pass DefaultAPIBase in production.
func NewClient(apiBase, accessToken string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase:     apiBase,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// ValidateSignature checks the X-Line-Signature header against the raw
// request body: base64(HMAC-SHA256(channelSecret, body)).
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}

// Reply sends a single text message against a reply token. The caller is
// expected to truncate the text to the platform ceiling first.
func (c *Client) Reply(replyToken, text string) error {
	payload, err := json.Marshal(map[string]any{
		"replyToken": replyToken,
		"messages": []map[string]string{
			{"type": "text", "text": text},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.apiBase+"/v2/bot/message/reply", strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("create reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line reply request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("line reply non-success status=%d body=%s", resp.StatusCode, Truncate(string(body), 400))
	}
	return nil
}

// DisplayName resolves the sender's display name for the given source.
// Any failure returns an error; callers substitute history.UnknownAuthor.
func (c *Client) DisplayName(src Source) (string, error) {
	path, err := profilePath(src)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return "", fmt.Errorf("create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("line profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read profile response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("line profile non-success status=%d body=%s", resp.StatusCode, Truncate(string(body), 400))
	}

	var profile struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return "", fmt.Errorf("failed to parse profile response: %w", err)
	}
	if profile.DisplayName == "" {
		return "", fmt.Errorf("profile response has empty displayName")
	}
	return profile.DisplayName, nil
}

func profilePath(src Source) (string, error) {
	switch s := src.(type) {
	case GroupSource:
		return "/v2/bot/group/" + url.PathEscape(s.GroupID) + "/member/" + url.PathEscape(s.UserID), nil
	case RoomSource:
		return "/v2/bot/room/" + url.PathEscape(s.RoomID) + "/member/" + url.PathEscape(s.UserID), nil
	case UserSource:
		return "/v2/bot/profile/" + url.PathEscape(s.UserID), nil
	default:
		return "", fmt.Errorf("unsupported source type %T", src)
	}
}

// Truncate limits s to maxChars runes.
func Truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
