// Package server implements the dashboard's HTTP surface.
//
// This package provides:
//   - the GitHub webhook endpoint with HMAC-SHA1 signature verification
//   - Discord OAuth2 login, callback and logout
//   - the bot document API guarded by session or admin bearer token
//   - server-rendered dashboard pages
//
// Server is the application context. It is built once at startup and
// every handler is a method on it, so tests can swap any collaborator for
// a fake.
//
// Authorization failures follow one policy per route class: browser routes
// redirect to /login, API routes answer with a JSON error (401 when no
// credential was presented, 403 when a bearer token did not match).
package server
