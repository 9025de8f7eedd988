// Package oauth implements the Discord authorization-code login flow.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds each call to the provider.
const DefaultTimeout = 10 * time.Second

var (
	// ErrTokenExchangeFailed is returned for any failure turning a code into
	// an access token, including timeouts and responses without a token.
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrProfileFetchFailed is returned when the user profile cannot be read.
	ErrProfileFetchFailed = errors.New("profile fetch failed")
)

// Config describes the provider and the registered application.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string
}

// Profile is the provider's user object, kept as decoded JSON.
type Profile map[string]interface{}

// ID returns the numeric user id. Discord sends snowflakes as strings.
func (p Profile) ID() (uint64, bool) {
	switch v := p["id"].(type) {
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case json.Number:
		id, err := strconv.ParseUint(v.String(), 10, 64)
		return id, err == nil
	}
	return 0, false
}

// Username returns the display name when present.
func (p Profile) Username() string {
	if name, ok := p["global_name"].(string); ok && name != "" {
		return name
	}
	name, _ := p["username"].(string)
	return name
}

// Client talks to the provider.
type Client struct {
	config     oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewClient creates a Client. Credentials are sent in the request body.
func NewClient(cfg Config) *Client {
	return &Client{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// AuthCodeURL returns the provider authorization URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrTokenExchangeFailed)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchangeFailed, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: response missing access_token", ErrTokenExchangeFailed)
	}

	return token, nil
}

// FetchProfile reads the current user with the bearer token.
func (c *Client) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileFetchFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: provider returned status %d", ErrProfileFetchFailed, resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileFetchFailed, err)
	}
	if _, ok := profile.ID(); !ok {
		return nil, fmt.Errorf("%w: profile has no numeric id", ErrProfileFetchFailed)
	}

	return profile, nil
}
