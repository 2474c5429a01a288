package jobstore

import (
	"sync"
	"testing"
	"time"

	"github.com/jonaohana/vessale/internal/audit"
	"github.com/jonaohana/vessale/internal/registry"
	"github.com/jonaohana/vessale/internal/workers/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(reg *registry.Registry) *Store {
	return New(reg, audit.NoopSink{}, zap.NewNop(), metrics.NewBasicProvider())
}

func TestCreate_AssignsDistinctTokensQueuedNoContent(t *testing.T) {
	reg := registry.New()
	s := newTestStore(reg)

	tokA := s.Create("t1", Metadata{})
	tokB := s.Create("t1", Metadata{})
	require.NotEqual(t, tokA, tokB)

	j, ok := s.Peek(tokA)
	require.True(t, ok)
	require.IsType(t, Queued{}, j.Status)
	require.Nil(t, j.Content)
}

func TestSelectForSerial_RequiresContent(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "t1", Serial: "S1"}})
	s := newTestStore(reg)

	tok := s.Create("t1", Metadata{})

	_, ok := s.SelectForSerial("S1")
	require.False(t, ok, "a content-less job must never be offered")

	s.AttachContent(tok, []byte("png"))
	job, ok := s.SelectForSerial("S1")
	require.True(t, ok)
	require.Equal(t, tok, job.Token)
	require.IsType(t, Offered{}, job.Status)
}

func TestSelectForSerial_UnknownSerialReturnsNone(t *testing.T) {
	reg := registry.New()
	s := newTestStore(reg)
	_, ok := s.SelectForSerial("ghost")
	require.False(t, ok)
}

func TestSelectForSerial_RoundRobinsAcrossSharedSerial(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "tA", Serial: "S2"}, {Tenant: "tB", Serial: "S2"}})
	s := newTestStore(reg)

	var tokensA, tokensB []string
	for i := 0; i < 4; i++ {
		tok := s.Create("tA", Metadata{})
		s.AttachContent(tok, []byte("x"))
		tokensA = append(tokensA, tok)

		tok = s.Create("tB", Metadata{})
		s.AttachContent(tok, []byte("x"))
		tokensB = append(tokensB, tok)
	}

	var gotTenants []string
	for i := 0; i < 8; i++ {
		job, ok := s.SelectForSerial("S2")
		require.True(t, ok)
		gotTenants = append(gotTenants, job.Tenant)
	}

	require.Equal(t, []string{"tA", "tB", "tA", "tB", "tA", "tB", "tA", "tB"}, gotTenants)
}

func TestSelectForSerial_CursorAdvancesOnlyOnSuccess(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "tA", Serial: "S1"}, {Tenant: "tB", Serial: "S1"}})
	s := newTestStore(reg)

	// Only tB has a ready job.
	tok := s.Create("tB", Metadata{})
	s.AttachContent(tok, []byte("x"))

	job, ok := s.SelectForSerial("S1")
	require.True(t, ok)
	require.Equal(t, "tB", job.Tenant)

	// Cursor must now point at tA (index 0), not skip past it, since the
	// scan started at tA, found nothing, then found tB: once tA has a ready
	// job too, it must be the very next one offered.
	tokA := s.Create("tA", Metadata{})
	s.AttachContent(tokA, []byte("x"))
	job, ok = s.SelectForSerial("S1")
	require.True(t, ok)
	require.Equal(t, "tA", job.Tenant)
}

// TestSelectForSerial_ConcurrentPollsStayFair exercises spec.md §4.F's
// "Concurrent poll from the same serial" case: the cursor read, scan, and
// advance must be one atomic critical section, or two racing selections can
// both start from the same stale cursor and break invariant 1 (offer counts
// across tenants sharing a serial differ by at most 1).
func TestSelectForSerial_ConcurrentPollsStayFair(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "tA", Serial: "S1"}, {Tenant: "tB", Serial: "S1"}})
	s := newTestStore(reg)

	const perTenant = 50
	for i := 0; i < perTenant; i++ {
		tokA := s.Create("tA", Metadata{})
		s.AttachContent(tokA, []byte("x"))
		tokB := s.Create("tB", Metadata{})
		s.AttachContent(tokB, []byte("x"))
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	counts := map[string]int{}

	for i := 0; i < 2*perTenant; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, ok := s.SelectForSerial("S1")
			if !ok {
				return
			}
			mu.Lock()
			counts[job.Tenant]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 2*perTenant, counts["tA"]+counts["tB"], "every ready job must be offered exactly once")
	diff := counts["tA"] - counts["tB"]
	if diff < 0 {
		diff = -diff
	}
	require.LessOrEqual(t, diff, 1, "round-robin fairness must hold under concurrent polls on a shared serial")
}

func TestFetch_UnknownToken(t *testing.T) {
	reg := registry.New()
	s := newTestStore(reg)
	_, result, violation := s.Fetch("ghost")
	require.Equal(t, FetchNotFound, result)
	require.False(t, violation)
}

func TestFetch_NotReadyReturnsJobReadyFalseShape(t *testing.T) {
	reg := registry.New()
	s := newTestStore(reg)
	tok := s.Create("t1", Metadata{})
	_, result, _ := s.Fetch(tok)
	require.Equal(t, FetchNotReady, result)
}

func TestFetch_OfferedToSent(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "t1", Serial: "S1"}})
	s := newTestStore(reg)

	tok := s.Create("t1", Metadata{})
	s.AttachContent(tok, []byte("x"))
	_, ok := s.SelectForSerial("S1")
	require.True(t, ok)

	job, result, violation := s.Fetch(tok)
	require.Equal(t, FetchOK, result)
	require.False(t, violation)
	require.IsType(t, Sent{}, job.Status)
}

func TestFetch_QueuedWithContent_IsProtocolViolationButServed(t *testing.T) {
	reg := registry.New()
	s := newTestStore(reg)

	tok := s.Create("t1", Metadata{})
	s.AttachContent(tok, []byte("x"))

	job, result, violation := s.Fetch(tok)
	require.Equal(t, FetchOK, result)
	require.True(t, violation)
	require.IsType(t, Sent{}, job.Status)
}

func TestConfirm_SuccessRemovesJob_IdempotentAfter(t *testing.T) {
	reg := registry.New()
	s := newTestStore(reg)
	tok := s.Create("t1", Metadata{})

	existed := s.Confirm(tok, true)
	require.True(t, existed)

	_, ok := s.Peek(tok)
	require.False(t, ok, "a successfully confirmed job must be removed")

	// Second confirm: unknown token, still treated as success by the caller.
	existed = s.Confirm(tok, true)
	require.False(t, existed)
}

func TestConfirm_FailureRequeuesAndClearsTimestamps(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "t1", Serial: "S1"}})
	s := newTestStore(reg)

	tok := s.Create("t1", Metadata{})
	s.AttachContent(tok, []byte("x"))
	s.SelectForSerial("S1")
	s.Fetch(tok)

	s.Confirm(tok, false)

	job, ok := s.Peek(tok)
	require.True(t, ok)
	require.IsType(t, Queued{}, job.Status)
}

func TestMarkRenderFailed_OnlyAffectsQueuedContentless(t *testing.T) {
	reg := registry.New()
	s := newTestStore(reg)

	tok := s.Create("t1", Metadata{})
	s.MarkRenderFailed(tok)

	job, ok := s.Peek(tok)
	require.True(t, ok)
	require.IsType(t, Failed{}, job.Status)
}

func TestMarkRenderFailed_IgnoresJobsWithContent(t *testing.T) {
	reg := registry.New()
	s := newTestStore(reg)

	tok := s.Create("t1", Metadata{})
	s.AttachContent(tok, []byte("x"))
	s.MarkRenderFailed(tok)

	job, ok := s.Peek(tok)
	require.True(t, ok)
	require.IsType(t, Queued{}, job.Status)
}

func TestSweep_RewindsOfferedPastTimeout(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "t1", Serial: "S1"}})
	s := newTestStore(reg)

	base := time.Unix(0, 0)
	tok := s.CreateAt("t1", Metadata{}, base)
	s.AttachContent(tok, []byte("x"))
	s.SelectForSerialAt("S1", base)

	rewound := s.Sweep(base.Add(11*time.Second), 10*time.Second, 20*time.Second)
	require.Equal(t, 1, rewound)

	job, ok := s.Peek(tok)
	require.True(t, ok)
	require.IsType(t, Queued{}, job.Status)
}

func TestSweep_DoesNotTouchFreshOffers(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "t1", Serial: "S1"}})
	s := newTestStore(reg)

	base := time.Unix(0, 0)
	tok := s.CreateAt("t1", Metadata{}, base)
	s.AttachContent(tok, []byte("x"))
	s.SelectForSerialAt("S1", base)

	rewound := s.Sweep(base.Add(5*time.Second), 10*time.Second, 20*time.Second)
	require.Equal(t, 0, rewound)

	job, ok := s.Peek(tok)
	require.True(t, ok)
	require.IsType(t, Offered{}, job.Status)
}
