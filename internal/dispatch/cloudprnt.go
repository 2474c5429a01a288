package dispatch

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonaohana/vessale/internal/history"
	"github.com/jonaohana/vessale/internal/jobstore"
	"github.com/jonaohana/vessale/internal/sweep"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// historyEntryFor builds the history.Entry recorded for job at stage,
// stamped with the current time (spec.md §3's history entry shape).
func historyEntryFor(job jobstore.Job, stage string) history.Entry {
	return history.Entry{
		At:       time.Now(),
		Tenant:   job.Tenant,
		Stage:    stage,
		Token:    job.Token,
		Customer: job.CustomerName,
		Order:    job.OrderNumber,
	}
}

// serialHeader carries the printer's device serial on every POST poll
// (spec.md §6).
const serialHeader = "X-Star-Serial-Number"

// acceptedMediaType is the only media type this server's renderer produces.
const acceptedMediaType = "image/png"

type pollResponse struct {
	JobReady     bool     `json:"jobReady"`
	JobToken     string   `json:"jobToken,omitempty"`
	MediaTypes   []string `json:"mediaTypes,omitempty"`
	DeleteMethod string   `json:"deleteMethod,omitempty"`
}

// handlePoll implements spec.md §6 operation 1 (POST /cloudprnt). Idle:
// {"jobReady": false}. Offer: {"jobReady": true, "jobToken": "<opaque>",
// "mediaTypes": ["image/png"], "deleteMethod": "DELETE"}.
//
// A serial absent from the Device Registry returns jobReady:false silently
// and never creates a presence record, protecting against typos and
// third-party probes (spec.md §4.F).
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.poll")
	defer span.End()

	serial := r.Header.Get(serialHeader)
	span.SetAttributes(attribute.String("printer.serial", serial))

	if serial == "" || !s.registry.Known(serial) {
		writeJSON(w, http.StatusOK, pollResponse{JobReady: false})
		return
	}

	now := time.Now()
	s.presence.MarkSeen(serial, r.RemoteAddr, now)
	s.store.SweepSerial(serial, now, sweep.DefaultOfferTimeout, sweep.DefaultSentTimeout)

	job, ok := s.store.SelectForSerialAt(serial, now)
	if !ok {
		writeJSON(w, http.StatusOK, pollResponse{JobReady: false})
		return
	}

	span.SetAttributes(attribute.String("job.token", job.Token), attribute.String("job.tenant", job.Tenant))
	s.history.Append(serial, historyEntryFor(job, "offered"))

	writeJSON(w, http.StatusOK, pollResponse{
		JobReady:     true,
		JobToken:     job.Token,
		MediaTypes:   []string{acceptedMediaType},
		DeleteMethod: http.MethodDelete,
	})
}

// handleFetch implements spec.md §6 operation 2 (GET /cloudprnt). Media
// type mismatch: 415. Unknown token: 404. Known token without content: 200
// {"jobReady": false} (not 404, so the printer keeps retrying). Known token
// with content: 200, Content-Type image/png, correct Content-Length, raw
// PNG+cut-command bytes; transitions offered -> sent.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.fetch")
	defer span.End()

	tok := r.URL.Query().Get("token")
	mediaType := r.URL.Query().Get("type")
	span.SetAttributes(attribute.String("job.token", tok))

	if mediaType != acceptedMediaType {
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	job, result, violation := s.store.Fetch(tok)
	switch result {
	case jobstore.FetchNotFound:
		http.Error(w, "unknown token", http.StatusNotFound)
		return
	case jobstore.FetchNotReady:
		writeJSON(w, http.StatusOK, pollResponse{JobReady: false})
		return
	}

	if violation {
		s.logger.Warn("fetch served a queued job (protocol violation by printer)", zap.String("token", tok))
	}
	for _, serial := range s.registry.SerialsForTenant(job.Tenant) {
		s.history.Append(serial, historyEntryFor(job, "sent"))
	}

	w.Header().Set("Content-Type", acceptedMediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(job.Content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(job.Content)
}

// handleConfirm implements spec.md §6 operation 3 (DELETE /cloudprnt).
// Always 200, including for unknown tokens (a confirmation for an unknown
// token is treated as success to prevent printer-side retry storms). code
// is case-insensitive; "OK", "200 OK", "200", or anything starting with "2"
// means success and removes the job; anything else requeues it.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.confirm")
	defer span.End()

	tok := r.URL.Query().Get("token")
	code := r.URL.Query().Get("code")
	span.SetAttributes(attribute.String("job.token", tok))

	job, _ := s.store.Peek(tok)
	success := isSuccessCode(code)
	s.store.Confirm(tok, success)

	// spec.md §8 Scenario 5: "history shows failed followed by a new
	// offered" — a negative confirmation is recorded as failed, not as a
	// distinct requeued stage.
	stage := "failed"
	if success {
		stage = "completed"
	}
	for _, serial := range s.registry.SerialsForTenant(job.Tenant) {
		s.history.Append(serial, historyEntryFor(job, stage))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// isSuccessCode implements spec.md §6's confirmation code grammar.
func isSuccessCode(code string) bool {
	u := strings.ToUpper(strings.TrimSpace(code))
	if u == "OK" || u == "200" || u == "200 OK" {
		return true
	}
	return strings.HasPrefix(u, "2")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
