package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"dash/internal/config"
	"dash/internal/oauth"
	"dash/internal/security"
	"dash/internal/session"
	"dash/internal/store"
	"dash/internal/web"
)

const (
	testAdminToken = "admin-token-for-tests"
	testBotID      = "351476683016241162"
	goodCode       = "good-code"
)

// events records the order in which collaborators are called.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, name)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

type fakeStore struct {
	mu        sync.Mutex
	tokens    map[string]bool
	bots      map[string]json.RawMessage
	scheduled []*store.Deployment
	lookupErr error
	storeErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tokens: map[string]bool{security.HashToken(testAdminToken): true},
		bots:   map[string]json.RawMessage{},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.storeErr }

func (f *fakeStore) AdminTokenExists(ctx context.Context, token string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[security.HashToken(token)], nil
}

func (f *fakeStore) GetBot(ctx context.Context, id string) (*store.Bot, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.bots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Bot{ID: id, Data: data, UpdatedAt: time.Now()}, nil
}

func (f *fakeStore) PutBot(ctx context.Context, id string, data json.RawMessage) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bots[id] = data
	return nil
}

func (f *fakeStore) RecordScheduled(ctx context.Context, d *store.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, d)
	return f.storeErr
}

func (f *fakeStore) RecentDeployments(ctx context.Context, limit int) ([]store.Deployment, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Deployment{}
	for _, d := range f.scheduled {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeStore) GetDeployment(ctx context.Context, jobID string) (*store.Deployment, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.scheduled {
		if d.JobID == jobID {
			return d, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeAuth struct{}

func (fakeAuth) AuthCodeURL(state string) string {
	return "https://discord.test/oauth2/authorize?state=" + url.QueryEscape(state)
}

func (fakeAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code != goodCode {
		return nil, oauth.ErrTokenExchangeFailed
	}
	return &oauth2.Token{AccessToken: "discord-access-token"}, nil
}

func (fakeAuth) FetchProfile(ctx context.Context, token *oauth2.Token) (oauth.Profile, error) {
	return oauth.Profile{"id": "80351110224678912", "username": "nelly"}, nil
}

type fakeNotifier struct {
	events *events
	err    error

	mu      sync.Mutex
	commits [][]*github.HeadCommit
	logs    []string
}

func (f *fakeNotifier) Deploy(ctx context.Context, event *github.PushEvent, commits []*github.HeadCommit) error {
	f.events.add("notify")
	f.mu.Lock()
	f.commits = append(f.commits, commits)
	f.mu.Unlock()
	return f.err
}

func (f *fakeNotifier) Log(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, text)
}

type fakeDeployer struct {
	events *events

	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeDeployer) ScheduleRestart(delay time.Duration) string {
	f.events.add("schedule")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, delay)
	return "job-" + string(rune('0'+len(f.delays)))
}

func (f *fakeDeployer) scheduled() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

type fixture struct {
	server   *Server
	sessions *session.Store
	handler  http.Handler
	store    *fakeStore
	notifier *fakeNotifier
	deployer *fakeDeployer
	events   *events
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.RateLimit = false
	cfg.Webhook.Secret = testSecret
	cfg.OAuth.ClientID = "351476683016241162"
	cfg.OAuth.ClientSecret = "client-secret"
	cfg.OAuth.RedirectURI = "https://dash.example.com/callback"
	cfg.Session.Secret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()

	sessions, err := session.NewStore([]byte(cfg.Session.Secret), time.Hour, false)
	if err != nil {
		t.Fatalf("Failed to create session store: %v", err)
	}
	pages, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("Failed to parse pages: %v", err)
	}

	ev := &events{}
	f := &fixture{
		sessions: sessions,
		store:    newFakeStore(),
		notifier: &fakeNotifier{events: ev},
		deployer: &fakeDeployer{events: ev},
		events:   ev,
	}

	f.server = NewServer(cfg, Dependencies{
		Store:    f.store,
		Sessions: sessions,
		OAuth:    fakeAuth{},
		Notifier: f.notifier,
		Deployer: f.deployer,
		Pages:    pages,
	}, testLogger())
	f.handler = f.server.Router()

	return f
}

// browser replays cookies between requests like a real client.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (f *fixture) browser(t *testing.T) *browser {
	return &browser{t: t, handler: f.handler, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
		} else {
			b.cookies[c.Name] = c
		}
	}
	return w
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// login walks /login and /callback with the given code and returns the
// callback response.
func (b *browser) login(code string) *httptest.ResponseRecorder {
	b.t.Helper()

	w := b.get("/login")
	if w.Code != http.StatusFound {
		b.t.Fatalf("GET /login status = %d, want 302", w.Code)
	}
	state := b.cookies[stateCookie]
	if state == nil {
		b.t.Fatal("GET /login did not set the state cookie")
	}

	return b.get("/callback?code=" + url.QueryEscape(code) + "&state=" + url.QueryEscape(state.Value))
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode JSON response %q: %v", w.Body.String(), err)
	}
	return body
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

var errBackend = errors.New("database is locked")

func wrapUnavailable(err error) error {
	return errors.Join(store.ErrUnavailable, err)
}

func mustContain(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("Expected %q to contain %q", s, substr)
	}
}
