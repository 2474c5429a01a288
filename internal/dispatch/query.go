package dispatch

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonaohana/vessale/internal/jobstore"
	"github.com/jonaohana/vessale/internal/presence"
)

// printerView is one entry of the configured-printer list (spec.md §4.G).
type printerView struct {
	Serial      string   `json:"serial"`
	Tenants     []string `json:"tenants"`
	Online      bool     `json:"online"`
	Seen        bool     `json:"seen"`
	AgeMillis   int64    `json:"ageMillis,omitempty"`
	NetworkAddr string   `json:"networkAddress,omitempty"`
}

// handleListPrinters returns every configured printer with online/offline
// status (spec.md §4.G "configured-printer list with online/offline
// status"). Read-only; mutates no dispatch state.
func (s *Server) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.query.printers")
	defer span.End()

	now := time.Now()
	snaps := s.presence.AllConfiguredSnapshot(now, s.registry.AllSerials(), s.registry.TenantsFor)
	writeJSON(w, http.StatusOK, toPrinterViews(snaps))
}

// handleOnlinePrinters returns only the currently online subset, ordered by
// recency (spec.md §4.G "online-only subset ordered by recency").
func (s *Server) handleOnlinePrinters(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.query.printers_online")
	defer span.End()

	now := time.Now()
	snaps := s.presence.OnlineSnapshot(now, s.registry.TenantsFor)
	writeJSON(w, http.StatusOK, toPrinterViews(snaps))
}

// handleSerialHistory returns a serial's bounded print history (spec.md
// §4.G "per-serial print history window").
func (s *Server) handleSerialHistory(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.query.history")
	defer span.End()

	serial := chi.URLParam(r, "serial")
	writeJSON(w, http.StatusOK, s.history.For(serial))
}

// queueJobView is the per-tenant queue introspection shape (spec.md §4.G
// "per-tenant queue introspection").
type queueJobView struct {
	Token        string    `json:"token"`
	Status       string    `json:"status"`
	HasContent   bool      `json:"hasContent"`
	CustomerName string    `json:"customerName,omitempty"`
	OrderNumber  string    `json:"orderNumber,omitempty"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// handleTenantQueue returns a snapshot of tenant's queue.
func (s *Server) handleTenantQueue(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.query.queue")
	defer span.End()

	tenant := chi.URLParam(r, "tenant")
	jobs := s.store.QueueSnapshot(tenant)

	out := make([]queueJobView, len(jobs))
	for i, j := range jobs {
		out[i] = toQueueJobView(j)
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePresenceDump returns the raw presence snapshot for every configured
// serial (spec.md §4.G "raw presence dump").
func (s *Server) handlePresenceDump(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "dispatch.query.presence")
	defer span.End()

	now := time.Now()
	writeJSON(w, http.StatusOK, s.presence.AllConfiguredSnapshot(now, s.registry.AllSerials(), s.registry.TenantsFor))
}

func toQueueJobView(j jobstore.Job) queueJobView {
	return queueJobView{
		Token:        j.Token,
		Status:       jobstore.Name(j.Status),
		HasContent:   j.Content != nil,
		CustomerName: j.CustomerName,
		OrderNumber:  j.OrderNumber,
		ReceivedAt:   j.ReceivedAt,
	}
}

func toPrinterViews(snaps []presence.Snapshot) []printerView {
	out := make([]printerView, len(snaps))
	for i, sn := range snaps {
		out[i] = printerView{
			Serial:      sn.Serial,
			Tenants:     sn.Tenants,
			Online:      sn.Online,
			Seen:        sn.Seen,
			AgeMillis:   sn.AgeMillis,
			NetworkAddr: sn.NetworkAddr,
		}
	}
	return out
}
