// Package jobstore holds per-tenant job queues, the global token index, and
// the job lifecycle state machine (spec.md §4.B). A single mutex guards all
// queues and the token index: critical sections are short scans over a
// handful of small per-tenant slices, so spec.md's "minimum discipline"
// option is sufficient and keeps Sweep and SelectForSerial trivially
// consistent with each other.
package jobstore

import (
	"sync"
	"time"

	"github.com/jonaohana/vessale/internal/audit"
	"github.com/jonaohana/vessale/internal/registry"
	"github.com/jonaohana/vessale/internal/token"
	"github.com/jonaohana/vessale/internal/workers/metrics"
	"go.uber.org/zap"
)

// Metadata carries the opaque passthrough fields attached to a job at
// creation, for observability only — never interpreted by the store.
type Metadata struct {
	CustomerName string
	OrderNumber  string
	OrderID      string
}

// Store owns every tenant queue and the token index. All exported methods
// are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	queues  map[string][]*Job // tenant -> FIFO queue
	byToken map[string]*Job
	cursor  map[string]int // serial -> next round-robin index, guarded by mu

	registry *registry.Registry
	audit    audit.Sink
	logger   *zap.Logger

	offered metrics.Counter
	sent    metrics.Counter
	done    metrics.Counter
	failed  metrics.Counter
	created metrics.Counter
}

// New constructs a Store bound to reg for serial-to-tenant resolution.
// sink and logger may not be nil; pass audit.NoopSink{} and zap.NewNop() for
// a dependency-free instance.
func New(reg *registry.Registry, sink audit.Sink, logger *zap.Logger, provider metrics.Provider) *Store {
	return &Store{
		queues:   make(map[string][]*Job),
		byToken:  make(map[string]*Job),
		cursor:   make(map[string]int),
		registry: reg,
		audit:    sink,
		logger:   logger,
		offered:  provider.Counter("jobs_offered_total"),
		sent:     provider.Counter("jobs_sent_total"),
		done:     provider.Counter("jobs_done_total"),
		failed:   provider.Counter("jobs_failed_total"),
		created:  provider.Counter("jobs_created_total"),
	}
}

// Create appends a queued, content-less job for tenant and returns its
// token. Never fails except OOM (spec.md §4.B).
func (s *Store) Create(tenant string, md Metadata) string {
	return s.CreateAt(tenant, md, time.Now())
}

// CreateAt is Create with an explicit creation time, for deterministic tests.
func (s *Store) CreateAt(tenant string, md Metadata, now time.Time) string {
	j := &Job{
		Token:        token.NewAt(now),
		Tenant:       tenant,
		Status:       Queued{},
		ReceivedAt:   now,
		CustomerName: md.CustomerName,
		OrderNumber:  md.OrderNumber,
		OrderID:      md.OrderID,
	}

	s.mu.Lock()
	s.queues[tenant] = append(s.queues[tenant], j)
	s.byToken[j.Token] = j
	s.mu.Unlock()

	s.created.Add(1)
	s.audit.Record(audit.Event{Stage: "received", Tenant: tenant, Token: j.Token, Customer: md.CustomerName, Order: md.OrderNumber, At: now})
	return j.Token
}

// AttachContent idempotently associates bytes with token. If the job is
// absent or already has content, the call silently drops (spec.md §4.B).
func (s *Store) AttachContent(tok string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.byToken[tok]
	if !ok || j.Content != nil {
		return
	}
	j.Content = content
}

// MarkRenderFailed transitions token to Failed, but only if it is currently
// Queued and content-less (spec.md §4.B). Any other state is left alone: the
// render broker races with the printer protocol, and a job that already has
// content or already moved on must not be clobbered.
func (s *Store) MarkRenderFailed(tok string) {
	s.mu.Lock()
	j, ok := s.byToken[tok]
	if !ok {
		s.mu.Unlock()
		return
	}
	_, queued := j.Status.(Queued)
	if !queued || j.Content != nil {
		s.mu.Unlock()
		return
	}
	j.Status = Failed{}
	tenant := j.Tenant
	s.mu.Unlock()

	s.failed.Add(1)
	s.audit.Record(audit.Event{Stage: "failed", Tenant: tenant, Token: tok, At: time.Now()})
}

// SelectForSerial is the central scheduling operation (spec.md §4.B): it
// round-robins across serial's bound tenants, offering the first
// content-ready queued job found, and only advances the cursor on success.
func (s *Store) SelectForSerial(serial string) (Job, bool) {
	return s.SelectForSerialAt(serial, time.Now())
}

// SelectForSerialAt is SelectForSerial with an explicit now, for tests.
//
// The cursor read, queue scan, and cursor advance all happen under a single
// acquisition of s.mu — the same lock that serializes queue mutation — so
// two concurrent polls for the same serial (spec.md §4.F: "Concurrent poll
// from the same serial") can never both observe the same cursor value
// before either advances it (spec.md §5).
func (s *Store) SelectForSerialAt(serial string, now time.Time) (Job, bool) {
	tenants := s.registry.TenantsFor(serial)
	n := len(tenants)
	if n == 0 {
		return Job{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.cursor[serial] % n
	for i := 0; i < n; i++ {
		tenant := tenants[(k+i)%n]
		for _, j := range s.queues[tenant] {
			if !j.Ready() {
				continue
			}
			j.Status = Offered{At: now}
			s.cursor[serial] = (k + i + 1) % n

			s.offered.Add(1)
			s.audit.Record(audit.Event{Stage: "offered", Tenant: tenant, Token: j.Token, At: now})
			return j.Snapshot(), true
		}
	}
	return Job{}, false
}

// FetchResult distinguishes the outcomes Fetch can report to the dispatch
// handler, which maps each to the wire shapes of spec.md §6's GET.
type FetchResult int

const (
	// FetchNotFound means token is unknown: the handler returns 404.
	FetchNotFound FetchResult = iota
	// FetchNotReady means the token is known but content has not yet
	// been attached: the handler returns 200 {jobReady:false}.
	FetchNotReady
	// FetchOK means content was attached and the job transitioned to
	// Sent; the handler streams the bytes.
	FetchOK
)

// Fetch implements spec.md §4.F operation 3 and the "allowed-but-logged"
// design note in §9: a job fetched while still Queued (content already
// attached) is treated as a protocol violation by the printer, logged, and
// served anyway, transitioning directly to Sent. violation reports whether
// this path was taken, so the caller can log/audit it.
func (s *Store) Fetch(tok string) (job Job, result FetchResult, violation bool) {
	return s.FetchAt(tok, time.Now())
}

// FetchAt is Fetch with an explicit now, for tests.
func (s *Store) FetchAt(tok string, now time.Time) (job Job, result FetchResult, violation bool) {
	s.mu.Lock()

	j, ok := s.byToken[tok]
	if !ok {
		s.mu.Unlock()
		return Job{}, FetchNotFound, false
	}
	if j.Content == nil {
		s.mu.Unlock()
		return Job{}, FetchNotReady, false
	}

	switch j.Status.(type) {
	case Offered:
		j.Status = Sent{At: now}
	case Queued:
		j.Status = Sent{At: now}
		violation = true
	default:
		// Sent/Done/Failed: content exists but the job isn't offerable
		// anymore; still serve the bytes already held rather than
		// erroring the printer mid-retry.
	}
	snap := j.Snapshot()
	tenant := j.Tenant
	s.mu.Unlock()

	s.sent.Add(1)
	s.audit.Record(audit.Event{Stage: "sent", Tenant: tenant, Token: tok, At: now})
	return snap, FetchOK, violation
}

// Confirm implements spec.md §4.F operation 4. success maps the printer's
// result code; on success the job transitions to Done and is removed; on
// failure it's requeued with timestamps cleared. existed reports whether a
// job was actually found — the handler always returns 200 regardless, per
// "a confirmation for an unknown token is treated as success".
func (s *Store) Confirm(tok string, success bool) (existed bool) {
	s.mu.Lock()

	j, ok := s.byToken[tok]
	if !ok {
		s.mu.Unlock()
		return false
	}

	if success {
		j.Status = Done{}
		delete(s.byToken, tok)
		s.removeFromQueueLocked(j)
		s.mu.Unlock()

		s.done.Add(1)
		s.audit.Record(audit.Event{Stage: "completed", Tenant: j.Tenant, Token: tok, At: time.Now()})
		return true
	}

	j.Status = Queued{}
	tenant := j.Tenant
	s.mu.Unlock()

	// spec.md §8 Scenario 5: a negative confirmation is recorded as failed,
	// not as a distinct "requeued" stage, matching the dispatch handler's
	// history vocabulary for the same event.
	s.audit.Record(audit.Event{Stage: "failed", Tenant: tenant, Token: tok, At: time.Now()})
	return true
}

// removeFromQueueLocked removes j from its tenant's queue slice. Callers
// must hold s.mu.
func (s *Store) removeFromQueueLocked(j *Job) {
	q := s.queues[j.Tenant]
	for i, cand := range q {
		if cand == j {
			s.queues[j.Tenant] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// Peek returns a read-only snapshot of token's job.
func (s *Store) Peek(tok string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byToken[tok]
	if !ok {
		return Job{}, false
	}
	return j.Snapshot(), true
}

// Remove drops token unconditionally (administrative action); used only by
// operator tooling, never by the protocol handlers themselves.
func (s *Store) Remove(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byToken[tok]
	if !ok {
		return
	}
	delete(s.byToken, tok)
	s.removeFromQueueLocked(j)
}

// QueueSnapshot returns a copy of tenant's queue, for the query surface.
func (s *Store) QueueSnapshot(tenant string) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[tenant]
	out := make([]Job, len(q))
	for i, j := range q {
		out[i] = j.Snapshot()
	}
	return out
}

// Sweep rewinds stale Offered/Sent jobs back to Queued, across every tenant
// queue (spec.md §4.D). It returns the number of jobs rewound.
func (s *Store) Sweep(now time.Time, offerTimeout, sentTimeout time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rewound := 0
	for tenant, q := range s.queues {
		for _, j := range q {
			switch st := j.Status.(type) {
			case Offered:
				if now.Sub(st.At) > offerTimeout {
					j.Status = Queued{}
					rewound++
					s.logger.Info("sweeper rewound offered job", zap.String("tenant", tenant), zap.String("token", j.Token))
				}
			case Sent:
				if now.Sub(st.At) > sentTimeout {
					j.Status = Queued{}
					rewound++
					s.logger.Info("sweeper rewound sent job", zap.String("tenant", tenant), zap.String("token", j.Token))
				}
			}
		}
	}
	return rewound
}

// SweepSerial sweeps only the tenants bound to serial — the "opportunistic"
// per-serial sweep spec.md §4.F's Poll operation performs before selection.
func (s *Store) SweepSerial(serial string, now time.Time, offerTimeout, sentTimeout time.Duration) int {
	tenants := s.registry.TenantsFor(serial)

	s.mu.Lock()
	defer s.mu.Unlock()

	rewound := 0
	for _, tenant := range tenants {
		for _, j := range s.queues[tenant] {
			switch st := j.Status.(type) {
			case Offered:
				if now.Sub(st.At) > offerTimeout {
					j.Status = Queued{}
					rewound++
				}
			case Sent:
				if now.Sub(st.At) > sentTimeout {
					j.Status = Queued{}
					rewound++
				}
			}
		}
	}
	return rewound
}
