package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dash/internal/security"
	"dash/internal/store"
)

// HandleHealth reports liveness and database reachability.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		s.Logger.Error("Health check failed", "error", err)
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleGetBot returns a bot document.
func (s *Server) HandleGetBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := security.ValidateSnowflake(id); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid bot id"})
		return
	}

	bot, err := s.Store.GetBot(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Bot not found"})
		return
	}
	if err != nil {
		s.respondStoreError(w, r, "get bot", err)
		return
	}

	s.respondJSON(w, http.StatusOK, bot)
}

// HandlePutBot replaces a bot document with the JSON object in the body.
func (s *Server) HandlePutBot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := security.ValidateSnowflake(id); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid bot id"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil || doc == nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Body must be a JSON object"})
		return
	}

	if err := s.Store.PutBot(r.Context(), id, json.RawMessage(body)); err != nil {
		s.respondStoreError(w, r, "put bot", err)
		return
	}

	s.Logger.Info("Bot document updated", "bot", id)
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleDeploys lists recent deploys.
func (s *Server) HandleDeploys(w http.ResponseWriter, r *http.Request) {
	deployments, err := s.Store.RecentDeployments(r.Context(), RecentDeploymentsLimit)
	if err != nil {
		s.respondStoreError(w, r, "list deployments", err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deployments": deployments})
}

// HandleDeploy returns the record of one restart job.
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	deployment, err := s.Store.GetDeployment(r.Context(), chi.URLParam(r, "job"))
	if errors.Is(err, store.ErrNotFound) {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Deployment not found"})
		return
	}
	if err != nil {
		s.respondStoreError(w, r, "get deployment", err)
		return
	}

	s.respondJSON(w, http.StatusOK, deployment)
}
