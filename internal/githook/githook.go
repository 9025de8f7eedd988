// Package githook registers the dashboard's push webhook on a GitHub
// repository.
package githook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"dash/internal/security"
)

// HookPath is where the server receives GitHub deliveries.
const HookPath = "/hooks/github"

// Registrar creates repository webhooks through the GitHub API.
type Registrar struct {
	client *github.Client
}

// NewRegistrar returns a Registrar authenticated with a personal access
// token. baseURL overrides the API endpoint (GitHub Enterprise or tests).
func NewRegistrar(ctx context.Context, token, baseURL string) (*Registrar, error) {
	if token == "" {
		return nil, errors.New("a GitHub token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
		client.BaseURL = u
	}

	return &Registrar{client: client}, nil
}

// HookURL joins the public server URL with HookPath.
func HookURL(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + HookPath
}

// EnsureWebhook creates a push webhook pointing at hookURL unless one with
// the same URL already exists. It reports whether a hook was created.
func (r *Registrar) EnsureWebhook(ctx context.Context, ownerRepo, hookURL, secret string) (bool, error) {
	owner, repo, err := security.ValidateOwnerRepo(ownerRepo)
	if err != nil {
		return false, err
	}
	if err := security.ValidateHTTPSURL(hookURL); err != nil {
		return false, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if secret == "" {
		return false, errors.New("webhook secret is required")
	}

	hooks, _, err := r.client.Repositories.ListHooks(ctx, owner, repo, nil)
	if err != nil {
		return false, fmt.Errorf("listing webhooks: %w", err)
	}

	for _, hook := range hooks {
		if hook.Config != nil {
			if u, ok := hook.Config["url"].(string); ok && u == hookURL {
				return false, nil
			}
		}
	}

	active := true
	hookReq := &github.Hook{
		Events: []string{"push"},
		Active: &active,
		Config: map[string]interface{}{
			"url":          hookURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	}

	if _, _, err := r.client.Repositories.CreateHook(ctx, owner, repo, hookReq); err != nil {
		return false, fmt.Errorf("creating webhook: %w", err)
	}

	return true, nil
}
