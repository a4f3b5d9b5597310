package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/jbod/internal/led"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	d, err := New(path)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = New(path)
	require.NoError(t, err)
	defer d.Close()
	v, err := d.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
	assert.Equal(t, path, d.Path())
}

func TestLEDEvents(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	on := true

	events := []led.Event{
		{ID: "a", Time: base, Target: "/dev/sg3", Index: 0, Indicator: "identify", Requested: true, Observed: &on, Attempts: 1, Result: "ok"},
		{ID: "b", Time: base.Add(time.Minute), Target: "/dev/sg3", Index: 4, Indicator: "fault", Requested: true, Attempts: 1, Result: "indeterminate", Error: "timeout"},
		{ID: "c", Time: base.Add(2 * time.Minute), Target: "/dev/sg3", Index: 0, Indicator: "identify", Requested: false, Observed: new(bool), Attempts: 2, Result: "ok"},
	}
	for _, ev := range events {
		require.NoError(t, d.RecordLEDEvent(ctx, ev))
	}
	assert.Error(t, d.RecordLEDEvent(ctx, events[0]), "operation ids are unique")

	recent, err := d.RecentLEDEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
	assert.Nil(t, recent[1].Observed)
	assert.Equal(t, "timeout", recent[1].Error)
	assert.True(t, recent[1].Time.Equal(base.Add(time.Minute)))
	require.NotNil(t, recent[0].Observed)
	assert.False(t, *recent[0].Observed)

	slot, err := d.SlotLEDEvents(ctx, "/dev/sg3", 0, 0)
	require.NoError(t, err)
	require.Len(t, slot, 2)
	assert.Equal(t, []string{"c", "a"}, []string{slot[0].ID, slot[1].ID})
	assert.True(t, *slot[1].Observed)

	n, err := d.PruneLEDEvents(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	recent, err = d.RecentLEDEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestAuditorInterface(t *testing.T) {
	var _ led.Auditor = openTemp(t)
}
