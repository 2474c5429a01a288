package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/jonaohana/vessale/internal/audit"
	"github.com/jonaohana/vessale/internal/jobstore"
	"github.com/jonaohana/vessale/internal/registry"
	"github.com/jonaohana/vessale/internal/workers/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweeper_RewindsOfferedWithinBoundary(t *testing.T) {
	reg := registry.New()
	reg.ReplaceAll([]registry.Entry{{Tenant: "t1", Serial: "S1"}})
	store := jobstore.New(reg, audit.NoopSink{}, zap.NewNop(), metrics.NewBasicProvider())

	tok := store.Create("t1", jobstore.Metadata{})
	store.AttachContent(tok, []byte("x"))
	store.SelectForSerial("S1")

	s := New(store, zap.NewNop()).WithTimings(20*time.Millisecond, 50*time.Millisecond, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		j, _ := store.Peek(tok)
		_, queued := j.Status.(jobstore.Queued)
		return queued
	}, time.Second, 10*time.Millisecond, "offered job must be rewound to queued after offer_timeout")
}
