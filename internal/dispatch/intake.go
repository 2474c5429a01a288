package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonaohana/vessale/internal/history"
	"github.com/jonaohana/vessale/internal/jobstore"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// intakeRequest is the wire shape of POST /api/print (spec.md §6).
// RestaurantID may be a single tenant id or a list, for multi-tenant
// fan-out (spec.md §4.F operation 1, Scenario 4).
type intakeRequest struct {
	RestaurantID json.RawMessage `json:"restaurantId" validate:"required"`
	Order        map[string]any  `json:"order" validate:"required"`
	OrderID      string          `json:"orderId"`
}

type intakeResponse struct {
	OK     bool     `json:"ok"`
	Tokens []string `json:"tokens,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// handleIntake implements spec.md §6's intake endpoint and §4.F operation
// 1: validates every named tenant is registered (rejecting the whole
// request on any unknown tenant), creates one queued content-less job per
// tenant sharing orderId for observability, submits a single render for the
// shared order payload, and returns the token list immediately — the render
// attaches to all created jobs once it completes (Scenario 4).
func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.intake")
	defer span.End()

	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, intakeResponse{OK: false, Error: "malformed request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, intakeResponse{OK: false, Error: "missing required field"})
		return
	}

	tenants, err := decodeRestaurantID(req.RestaurantID)
	if err != nil || len(tenants) == 0 {
		writeJSON(w, http.StatusBadRequest, intakeResponse{OK: false, Error: "restaurantId must be a string or a non-empty array of strings"})
		return
	}

	var unknown []string
	for _, t := range tenants {
		if !s.registry.KnownTenant(t) {
			unknown = append(unknown, t)
		}
	}
	if len(unknown) > 0 {
		writeJSON(w, http.StatusNotFound, intakeResponse{OK: false, Error: "Unknown restaurantId(s): " + strings.Join(unknown, ", ")})
		return
	}

	customer, _ := req.Order["customerName"].(string)
	orderNumber, _ := req.Order["orderNumber"].(string)
	md := jobstore.Metadata{CustomerName: customer, OrderNumber: orderNumber, OrderID: req.OrderID}

	tokens := make([]string, 0, len(tenants))
	for _, t := range tenants {
		tok := s.store.Create(t, md)
		tokens = append(tokens, tok)
		for _, serial := range s.registry.SerialsForTenant(t) {
			s.history.Append(serial, history.Entry{At: time.Now(), Tenant: t, Stage: "received", Token: tok, Customer: customer, Order: orderNumber})
		}
	}
	span.SetAttributes(attribute.StringSlice("job.tokens", tokens))

	html := renderOrderHTML(req.Order)
	if err := s.broker.Submit(html, tokens); err != nil {
		s.logger.Error("render submission failed", zap.Error(err), zap.Strings("tokens", tokens))
	}

	if s.loader != nil {
		s.loader.RequestRefresh(r.Context())
	}

	writeJSON(w, http.StatusAccepted, intakeResponse{OK: true, Tokens: tokens})
}

// handleReload implements the administrative config-reload endpoint
// (spec.md §6's "Administrative POST to force a config reload").
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.loader != nil {
		s.loader.RequestRefresh(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// decodeRestaurantID accepts either a JSON string or a JSON array of
// strings, matching spec.md §6's "restaurantId: string | string[]".
func decodeRestaurantID(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil, fmt.Errorf("empty restaurantId")
		}
		return []string{single}, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// renderOrderHTML is a minimal, non-production templating of the order
// payload into HTML for the render broker. The real receipt templating is
// an external collaborator out of scope (spec.md §1).
func renderOrderHTML(order map[string]any) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "%v", order)
	b.WriteString("</body></html>")
	return b.String()
}
