// Package timeback is the client for the learning platform's REST API:
// OAuth client-credentials token exchange, idempotent student account
// upserts, profile assignment and the live application catalog.
package timeback

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

// Config holds the platform client settings.
type Config struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RateDelay    time.Duration
}

// Client is the platform API client. The bearer token obtained by
// Authenticate is reused for every call within the run; a batch outliving
// token validity is an accepted limitation.
type Client struct {
	endpoint     string
	clientID     string
	clientSecret string
	rateDelay    time.Duration
	httpClient   httpretry.HTTPDoer
	token        string

	// sleep applies the inter-call rate-limit delay; swappable for tests.
	sleep func(time.Duration)
}

// NewClient creates a platform client with retrying transport.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		rateDelay:    cfg.RateDelay,
		httpClient:   httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
		sleep:        time.Sleep,
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

// Authenticate exchanges client credentials for a bearer token using HTTP
// Basic auth against the platform token endpoint, requesting the fixed
// rostering/LTI scope set.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", tokenScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/auth/1.0/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
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

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	c.token = tok.AccessToken
	return nil
}

// CreateStudent upserts a student account. HTTP 200/201 is success; 409
// (already exists) is success as well — the server is idempotent on
// duplicate creation. The returned id is the server-confirmed sourcedId,
// falling back to the locally generated one when the response omits it.
func (c *Client) CreateStudent(ctx context.Context, payload AccountPayload) (string, error) {
	c.pause()

	body, status, err := c.doJSON(ctx, http.MethodPut, "/rostering/1.0/students", payload)
	if err != nil {
		return "", err
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		var sr studentResponse
		if err := json.Unmarshal(body, &sr); err == nil && sr.Student.SourcedID != "" {
			return sr.Student.SourcedID, nil
		}
		return payload.Student.SourcedID, nil
	default:
		return "", fmt.Errorf("HTTP %d: %s", status, string(body))
	}
}

// AssignProfile assigns an application or assessment profile to the user.
// The path is scoped by the server-confirmed user id and the profile id.
func (c *Client) AssignProfile(ctx context.Context, userID string, assignment ProfileAssignment) error {
	c.pause()

	path := fmt.Sprintf("/rostering/1.0/users/%s/profiles/%s", userID, assignment.ProfileID)
	body, status, err := c.doJSON(ctx, http.MethodPut, path, assignment)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("HTTP %d: %s", status, string(body))
	}
	return nil
}

// Applications fetches the live application catalog (name → sourcedId).
// The paginated listing is supplemented by a name-filtered lookup for any
// needed application the pagination missed; a failed lookup is logged and
// the name left unresolved rather than failing the run.
func (c *Client) Applications(ctx context.Context, needed []string) (map[string]string, error) {
	apps := make(map[string]string)

	const limit = 100
	for offset := 0; ; offset += limit {
		path := fmt.Sprintf("/applications/1.0?limit=%d&offset=%d", limit, offset)
		body, status, err := c.doJSON(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("list applications: HTTP %d: %s", status, string(body))
		}

		var page applicationsResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parse applications response: %w", err)
		}
		for _, app := range page.Applications {
			if app.Name != "" && app.SourcedID != "" {
				apps[app.Name] = app.SourcedID
			}
		}
		if !page.Pagination.HasMore {
			break
		}
	}

	for _, name := range needed {
		if name == "" {
			continue
		}
		if _, ok := apps[name]; ok {
			continue
		}
		id, err := c.lookupApplication(ctx, name)
		if err != nil {
			log.Printf("[timeback] lookup application %q: %v", name, err)
			continue
		}
		if id != "" {
			apps[name] = id
		}
	}

	return apps, nil
}

// lookupApplication searches the catalog by exact name; guards against
// pagination gaps in the listing endpoint.
func (c *Client) lookupApplication(ctx context.Context, name string) (string, error) {
	filter := url.QueryEscape(fmt.Sprintf("name='%s'", name))
	// The API expects the '=' inside the filter expression unescaped.
	filter = strings.ReplaceAll(filter, "%3D", "=")

	body, status, err := c.doJSON(ctx, http.MethodGet, "/applications/1.0?filter="+filter, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", status, string(body))
	}

	var page applicationsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return "", err
	}
	for _, app := range page.Applications {
		if app.Name == name && app.SourcedID != "" {
			return app.SourcedID, nil
		}
	}
	return "", nil
}

// doJSON performs an authenticated request and returns the raw body and
// status; status interpretation is left to the caller since some non-2xx
// codes (409) are successes.
func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}) ([]byte, int, error) {
	if c.token == "" {
		return nil, 0, fmt.Errorf("client not authenticated")
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// pause applies the fixed inter-call delay that keeps the run inside the
// platform's rate limits. It is independent of retry backoff.
func (c *Client) pause() {
	if c.rateDelay > 0 {
		c.sleep(c.rateDelay)
	}
}
