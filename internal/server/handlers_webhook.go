package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"

	"dash/internal/deploy"
	"dash/internal/store"
)

// HandleGitHubWebhook verifies a GitHub delivery and triggers a redeploy
// when a pushed commit carries the deploy marker.
func (s *Server) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	// The signature covers the raw bytes, so read before any parsing.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
			return
		}
		s.Logger.Error("Failed to read request body", "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read payload"})
		return
	}

	if !VerifySignature(body, r.Header.Get(SignatureHeader), s.Config.Webhook.Secret) {
		s.Logger.Warn("Rejected webhook with invalid signature", "ip", clientIP(r))
		s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	delivery := r.Header.Get("X-GitHub-Delivery")

	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "", "push":
	case "ping":
		s.Logger.Info("Webhook ping received", "delivery", delivery)
		s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	default:
		s.Logger.Info("Ignoring non-push event", "event", event, "delivery", delivery)
		s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	push, err := deploy.ParsePush(body)
	if err != nil {
		s.Logger.Warn("Failed to parse push payload", "error", err, "delivery", delivery)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	marker := s.Config.Webhook.DeployMarker
	if !deploy.ShouldDeploy(push, marker) {
		s.Logger.Info("Push without deploy marker", "delivery", delivery, "commits", len(push.Commits))
		s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	s.triggerDeploy(r.Context(), delivery, push, deploy.MarkedCommits(push, marker))

	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// triggerDeploy notifies the sink, then schedules the restart. Failures are
// logged and never change the webhook response.
func (s *Server) triggerDeploy(ctx context.Context, delivery string, push *github.PushEvent, commits []*github.HeadCommit) {
	if err := s.Notifier.Deploy(ctx, push, commits); err != nil {
		s.Logger.Error("Failed to send deploy notification", "error", err, "delivery", delivery)
	}

	delay := s.Config.Webhook.RestartDelay
	jobID := s.Deployer.ScheduleRestart(delay)

	head := commits[len(commits)-1]
	subject, _, _ := strings.Cut(head.GetMessage(), "\n")

	record := &store.Deployment{
		JobID:      jobID,
		Delivery:   stringPtrOrNil(delivery),
		CommitHash: stringPtrOrNil(head.GetID()),
		Message:    stringPtrOrNil(subject),
	}
	if err := s.Store.RecordScheduled(ctx, record); err != nil {
		s.Logger.Error("Failed to record deployment", "error", err, "job", jobID)
	}

	s.Logger.Info("Deploy triggered",
		"job", jobID,
		"delivery", delivery,
		"commit", deploy.ShortSHA(head.GetID()),
		"delay", delay.String())
	s.Notifier.Log(fmt.Sprintf("deploy %s scheduled in %s", deploy.ShortSHA(head.GetID()), delay))
}
