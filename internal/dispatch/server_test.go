package dispatch

import (
	"context"
	"testing"

	"github.com/jonaohana/vessale/internal/audit"
	"github.com/jonaohana/vessale/internal/history"
	"github.com/jonaohana/vessale/internal/jobstore"
	"github.com/jonaohana/vessale/internal/presence"
	"github.com/jonaohana/vessale/internal/registry"
	"github.com/jonaohana/vessale/internal/render"
	"github.com/jonaohana/vessale/internal/workers/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestServer wires a Server over fresh, in-memory components bound to
// reg's mapping, for handler-level tests. Callers must call the returned
// stop func once done to release the render broker's pool.
func newTestServer(t *testing.T, entries []registry.Entry) (*Server, func()) {
	t.Helper()

	reg := registry.New()
	reg.ReplaceAll(entries)

	store := jobstore.New(reg, audit.NoopSink{}, zap.NewNop(), metrics.NewBasicProvider())
	pres := presence.New()
	hist := history.New()

	broker, err := render.NewBroker(context.Background(), store, render.NewStubRenderer(), zap.NewNop())
	require.NoError(t, err)

	srv := NewServer(Deps{
		Store:    store,
		Registry: reg,
		Presence: pres,
		History:  hist,
		Audit:    audit.NoopSink{},
		Broker:   broker,
		Logger:   zap.NewNop(),
	})

	return srv, func() { broker.Stop(context.Background()) }
}
