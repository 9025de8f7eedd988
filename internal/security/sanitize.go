package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	snowflakePattern = regexp.MustCompile(`^[0-9]{15,21}$`)
	ownerRepoPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+$`)
)

// ValidateSnowflake ensures an identifier looks like a Discord snowflake.
// Bot documents are keyed by snowflake, so anything else is rejected before
// it reaches the store.
func ValidateSnowflake(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if !snowflakePattern.MatchString(id) {
		return fmt.Errorf("id must be 15-21 digits")
	}
	return nil
}

// ValidateOwnerRepo ensures a GitHub "owner/repo" pair is well formed.
func ValidateOwnerRepo(ownerRepo string) (owner, repo string, err error) {
	if !ownerRepoPattern.MatchString(ownerRepo) {
		return "", "", fmt.Errorf("invalid owner/repo format: %q", ownerRepo)
	}
	parts := strings.SplitN(ownerRepo, "/", 2)
	if strings.HasPrefix(parts[1], ".") {
		return "", "", fmt.Errorf("repository name cannot start with '.'")
	}
	return parts[0], parts[1], nil
}

// ValidateHTTPSURL ensures an outbound URL (webhook sink, provider endpoint)
// is absolute and uses HTTPS. Plain HTTP is accepted only for loopback hosts.
func ValidateHTTPSURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must be absolute: %q", rawURL)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" {
			return nil
		}
		return fmt.Errorf("plain HTTP only allowed for loopback hosts, got %s", host)
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

// SafeRedirectPath reports whether target is a local absolute path that
// cannot be turned into an open redirect ("//evil.com", "/\evil.com").
func SafeRedirectPath(target string) bool {
	if !strings.HasPrefix(target, "/") {
		return false
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	return !strings.ContainsAny(target, "\r\n")
}
