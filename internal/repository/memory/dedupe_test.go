package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeduper_FirstSeenAndExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := NewDeduper(time.Hour)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, first)

	again, err := d.FirstSeen(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, again)

	now = now.Add(2 * time.Hour)
	afterTTL, _ := d.FirstSeen(ctx, "evt_1")
	require.True(t, afterTTL)
}
