// Package hubspot writes the tracker link back to the CRM contact record.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lwai/onboarding/internal/pkg/httpretry"
)

// DefaultBaseURL is the public HubSpot API host.
const DefaultBaseURL = "https://api.hubapi.com"

// Config holds the CRM client settings. Either a private-app access token
// or an OAuth client id and secret must be set.
type Config struct {
	BaseURL         string
	AccessToken     string
	ClientID        string
	ClientSecret    string
	TrackerProperty string
	Timeout         time.Duration
	RateDelay       time.Duration
}

// Client is the CRM API client.
type Client struct {
	baseURL         string
	accessToken     string
	clientID        string
	clientSecret    string
	trackerProperty string
	rateDelay       time.Duration
	httpClient      httpretry.HTTPDoer

	sleep func(time.Duration)
}

// NewClient creates a CRM client with retrying transport.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		accessToken:     cfg.AccessToken,
		clientID:        cfg.ClientID,
		clientSecret:    cfg.ClientSecret,
		trackerProperty: cfg.TrackerProperty,
		rateDelay:       cfg.RateDelay,
		httpClient:      httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
		sleep:           time.Sleep,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// SetSleep replaces the rate-limit sleep function (useful for testing).
func (c *Client) SetSleep(sleep func(time.Duration)) {
	c.sleep = sleep
}

// Authenticate resolves the bearer token. A configured private-app token
// is used directly; otherwise the OAuth client-credentials exchange runs.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.accessToken != "" {
		return nil
	}
	if c.clientID == "" || c.clientSecret == "" {
		return fmt.Errorf("hubspot auth not configured: need an access token or a client id and secret")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token request: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}
	c.accessToken = tok.AccessToken
	return nil
}

// FindContactByEmail resolves a contact id (vid) by email. A missing
// contact is an error.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (string, error) {
	path := fmt.Sprintf("/contacts/v1/contact/email/%s/profile", url.PathEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("find contact: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var contact struct {
			Vid json.Number `json:"vid"`
			ID  json.Number `json:"id"`
		}
		if err := json.Unmarshal(body, &contact); err != nil {
			return "", fmt.Errorf("parse contact: %w", err)
		}
		if contact.Vid != "" {
			return contact.Vid.String(), nil
		}
		if contact.ID != "" {
			return contact.ID.String(), nil
		}
		return "", fmt.Errorf("contact response missing id")
	case http.StatusNotFound:
		return "", fmt.Errorf("contact not found")
	default:
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
}

// UpdateContactProperty sets one property on a contact.
func (c *Client) UpdateContactProperty(ctx context.Context, contactID, property, value string) error {
	payload := map[string]interface{}{
		"properties": []map[string]string{
			{"property": property, "value": value},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	path := fmt.Sprintf("/contacts/v1/contact/vid/%s/profile", contactID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// UpdateResult is the CRM write outcome for one tracker link.
type UpdateResult struct {
	Email string
	Err   string
}

// UpdateTrackerLinks writes each tracker link to its contact's tracker
// property. A contact that cannot be found or updated is recorded and
// skipped; the batch continues.
func (c *Client) UpdateTrackerLinks(ctx context.Context, links map[string]string) []UpdateResult {
	out := make([]UpdateResult, 0, len(links))
	for email, link := range links {
		if email == "" || link == "" {
			out = append(out, UpdateResult{Email: email, Err: "missing email or tracker link"})
			continue
		}

		c.pause()
		contactID, err := c.FindContactByEmail(ctx, email)
		if err != nil {
			log.Printf("[hubspot] find contact %s: %v", email, err)
			out = append(out, UpdateResult{Email: email, Err: err.Error()})
			continue
		}

		c.pause()
		if err := c.UpdateContactProperty(ctx, contactID, c.trackerProperty, link); err != nil {
			log.Printf("[hubspot] update contact %s: %v", email, err)
			out = append(out, UpdateResult{Email: email, Err: err.Error()})
			continue
		}
		out = append(out, UpdateResult{Email: email})
	}
	return out
}

func (c *Client) pause() {
	if c.rateDelay > 0 {
		c.sleep(c.rateDelay)
	}
}
