package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndFor(t *testing.T) {
	l := New()
	require.Nil(t, l.For("S1"))

	l.Append("S1", Entry{Stage: "received", Token: "X"})
	l.Append("S1", Entry{Stage: "offered", Token: "X"})

	entries := l.For("S1")
	require.Len(t, entries, 2)
	require.Equal(t, "received", entries[0].Stage)
	require.Equal(t, "offered", entries[1].Stage)
}

func TestLog_RingOverwritesOldestPastCap(t *testing.T) {
	l := New()
	for i := 0; i < Cap+10; i++ {
		l.Append("S1", Entry{Stage: "x", Token: time.Now().String(), Order: intToString(i)})
	}

	entries := l.For("S1")
	require.Len(t, entries, Cap)
	require.Equal(t, intToString(10), entries[0].Order, "oldest 10 entries must have been overwritten")
	require.Equal(t, intToString(Cap+9), entries[Cap-1].Order)
}

func intToString(i int) string {
	digits := []byte{}
	if i == 0 {
		return "0"
	}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func TestLog_SeparateSerialsIndependent(t *testing.T) {
	l := New()
	l.Append("S1", Entry{Stage: "received"})
	require.Len(t, l.For("S1"), 1)
	require.Nil(t, l.For("S2"))
}
