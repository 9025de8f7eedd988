// Package session keeps login sessions server-side. The browser cookie only
// carries a signed session id.
package session

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/hashicorp/go-memdb"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// CookieName is the name of the session cookie.
const CookieName = "dash_session"

const tableSessions = "sessions"

// record is the stored form of a session.
type record struct {
	ID      string
	Values  map[interface{}]interface{}
	Expires time.Time
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableSessions: {
			Name: tableSessions,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		},
	},
}

// Store implements sessions.Store on an in-memory go-memdb table.
type Store struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options

	db     *memdb.MemDB
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store whose cookies are signed with secret.
func NewStore(secret []byte, maxAge time.Duration, secure bool, opts ...Option) (*Store, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is required")
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create session table: %w", err)
	}

	s := &Store{
		Codecs: securecookie.CodecsFromPairs(secret),
		Options: &sessions.Options{
			Path:     "/",
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		},
		db:     db,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.MaxAge(int(maxAge.Seconds()))

	return s, nil
}

// MaxAge sets the lifetime of new sessions and of their signed cookies.
func (s *Store) MaxAge(age int) {
	s.Options.MaxAge = age
	for _, c := range s.Codecs {
		if codec, ok := c.(*securecookie.SecureCookie); ok {
			codec.MaxAge(age)
		}
	}
}

// Get returns the cached session for the request, loading it on first use.
func (s *Store) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns the stored session named by the request cookie, or a fresh
// anonymous session. An invalid or expired cookie yields a fresh session
// together with the decode error.
func (s *Store) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, errCookie := r.Cookie(name)
	if errCookie != nil {
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.Codecs...); err != nil {
		return session, err
	}

	rec, err := s.load(id)
	if err != nil {
		return session, err
	}
	if rec == nil {
		return session, nil
	}

	session.ID = rec.ID
	session.Values = rec.Values
	session.IsNew = false
	return session, nil
}

// Save persists the session and writes its cookie. A negative MaxAge
// deletes the session.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.delete(session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = newID()
	}

	if err := s.save(session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return fmt.Errorf("failed to sign session cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Rotate discards the stored record of session so the next Save issues a
// new id. Values stay on the session.
func (s *Store) Rotate(session *sessions.Session) error {
	if session.ID != "" {
		if err := s.delete(session.ID); err != nil {
			return err
		}
	}
	session.ID = ""
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableSessions, "id")
	if err != nil {
		return 0
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n
}

// Purge deletes expired sessions and returns how many were removed.
func (s *Store) Purge() (int, error) {
	now := s.clock.Now()

	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(tableSessions, "id")
	if err != nil {
		return 0, fmt.Errorf("failed to scan sessions: %w", err)
	}

	var expired []interface{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		if rec := obj.(*record); !now.Before(rec.Expires) {
			expired = append(expired, rec)
		}
	}

	for _, rec := range expired {
		if err := txn.Delete(tableSessions, rec); err != nil {
			return 0, fmt.Errorf("failed to delete session: %w", err)
		}
	}

	txn.Commit()
	return len(expired), nil
}

// StartSweeper purges expired sessions on the given cron schedule, e.g.
// "@every 10m". Stop the returned scheduler on shutdown.
func (s *Store) StartSweeper(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := s.Purge()
		if err != nil {
			s.logger.Error("Session sweep failed", "error", err)
			return
		}
		if n > 0 {
			s.logger.Info("Expired sessions purged", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	c.Start()
	return c, nil
}

func (s *Store) load(id string) (*record, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	obj, err := txn.First(tableSessions, "id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if obj == nil {
		return nil, nil
	}

	rec := obj.(*record)
	if !s.clock.Now().Before(rec.Expires) {
		return nil, nil
	}

	return &record{ID: rec.ID, Values: copyValues(rec.Values), Expires: rec.Expires}, nil
}

func (s *Store) save(session *sessions.Session) error {
	rec := &record{
		ID:      session.ID,
		Values:  copyValues(session.Values),
		Expires: s.clock.Now().Add(time.Duration(session.Options.MaxAge) * time.Second),
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tableSessions, rec); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *Store) delete(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tableSessions, "id", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	txn.Commit()
	return nil
}

// copyValues detaches stored values from the request that produced them.
func copyValues(values map[interface{}]interface{}) map[interface{}]interface{} {
	out := make(map[interface{}]interface{}, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func newID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("session: crypto/rand failed: %v", err))
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(b), "=")
}
