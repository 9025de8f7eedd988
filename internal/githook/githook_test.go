package githook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitHub struct {
	mu       sync.Mutex
	existing []map[string]interface{}
	created  []map[string]interface{}
	auth     []string
}

func (f *fakeGitHub) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/statsy/dash/hooks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))

		switch r.Method {
		case http.MethodGet:
			hooks := []map[string]interface{}{}
			for _, cfg := range f.existing {
				hooks = append(hooks, map[string]interface{}{"id": 1, "config": cfg})
			}
			json.NewEncoder(w).Encode(hooks)
		case http.MethodPost:
			var body map[string]interface{}
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.created = append(f.created, body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 2})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return httptest.NewServer(mux)
}

func TestEnsureWebhook_Creates(t *testing.T) {
	fake := &fakeGitHub{}
	srv := fake.server(t)
	defer srv.Close()

	r, err := NewRegistrar(context.Background(), "ghp_test", srv.URL)
	require.NoError(t, err)

	created, err := r.EnsureWebhook(context.Background(), "statsy/dash", "https://dash.example.com/hooks/github", "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS")
	require.NoError(t, err)
	assert.True(t, created)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.created, 1)
	assert.Equal(t, []interface{}{"push"}, fake.created[0]["events"])

	cfg := fake.created[0]["config"].(map[string]interface{})
	assert.Equal(t, "https://dash.example.com/hooks/github", cfg["url"])
	assert.Equal(t, "json", cfg["content_type"])
	assert.Equal(t, "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS", cfg["secret"])

	for _, h := range fake.auth {
		assert.Equal(t, "Bearer ghp_test", h)
	}
}

func TestEnsureWebhook_AlreadyExists(t *testing.T) {
	fake := &fakeGitHub{existing: []map[string]interface{}{
		{"url": "https://dash.example.com/hooks/github"},
	}}
	srv := fake.server(t)
	defer srv.Close()

	r, err := NewRegistrar(context.Background(), "ghp_test", srv.URL)
	require.NoError(t, err)

	created, err := r.EnsureWebhook(context.Background(), "statsy/dash", "https://dash.example.com/hooks/github", "secret")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, fake.created)
}

func TestEnsureWebhook_Validation(t *testing.T) {
	r, err := NewRegistrar(context.Background(), "ghp_test", "http://127.0.0.1:1")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = r.EnsureWebhook(ctx, "not-a-repo", "https://dash.example.com/hooks/github", "secret")
	assert.Error(t, err)

	_, err = r.EnsureWebhook(ctx, "statsy/dash", "http://dash.example.com/hooks/github", "secret")
	assert.Error(t, err)

	_, err = r.EnsureWebhook(ctx, "statsy/dash", "https://dash.example.com/hooks/github", "")
	assert.Error(t, err)
}

func TestNewRegistrar_RequiresToken(t *testing.T) {
	_, err := NewRegistrar(context.Background(), "", "")
	assert.Error(t, err)
}

func TestHookURL(t *testing.T) {
	assert.Equal(t, "https://dash.example.com/hooks/github", HookURL("https://dash.example.com/"))
	assert.Equal(t, "https://dash.example.com/hooks/github", HookURL("https://dash.example.com"))
}
