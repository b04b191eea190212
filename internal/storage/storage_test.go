package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterbot/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(DriverPure, filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDSN(t *testing.T) {
	dsn, err := DSN(DriverCGO, "/tmp/x.db")
	require.NoError(t, err)
	assert.Contains(t, dsn, "_busy_timeout=5000")

	dsn, err = DSN(DriverPure, "/tmp/x.db")
	require.NoError(t, err)
	assert.Contains(t, dsn, "busy_timeout(5000)")

	_, err = DSN("postgres", "/tmp/x.db")
	assert.Error(t, err)
}

func TestVolunteerLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := GetVolunteer(ctx, s.DB(), "+1555")
	assert.ErrorIs(t, err, ErrNotFound)

	v := models.Volunteer{
		Phone:       "+1555",
		Name:        "Jane Doe",
		Skills:      []string{"Python", "first aid"},
		Available:   true,
		CurrentRole: "greeter",
	}
	require.NoError(t, UpsertVolunteer(ctx, s.DB(), v))

	got, err := GetVolunteer(ctx, s.DB(), "+1555")
	require.NoError(t, err)
	assert.Equal(t, v, got)

	deletedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, ArchiveVolunteer(ctx, s.DB(), got, deletedAt))

	_, err = GetVolunteer(ctx, s.DB(), "+1555")
	assert.ErrorIs(t, err, ErrNotFound)

	archived, err := ListDeleted(ctx, s.DB())
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, v, archived[0].Volunteer)
	assert.True(t, deletedAt.Equal(archived[0].DeletedAt))

	require.NoError(t, PurgeArchived(ctx, s.DB(), "+1555"))
	archived, err = ListDeleted(ctx, s.DB())
	require.NoError(t, err)
	assert.Empty(t, archived)
}

func TestWithExclusiveTx_RollsBackOnError(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithExclusiveTx(ctx, func(q Querier) error {
		if err := UpsertVolunteer(ctx, q, models.Volunteer{Phone: "+1", Name: "A"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = GetVolunteer(ctx, s.DB(), "+1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.WithExclusiveTx(ctx, func(q Querier) error {
		return UpsertVolunteer(ctx, q, models.Volunteer{Phone: "+1", Name: "A"})
	})
	require.NoError(t, err)

	list, err := ListVolunteers(ctx, s.DB())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFlowStore_RoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	flows := s.Flows()

	state, err := flows.Load(ctx, "+1")
	require.NoError(t, err)
	_, active := state.Active()
	assert.False(t, active)

	current := "registration"
	state.CurrentFlow = &current
	state.Flows["registration"] = models.FlowProgress{Step: "initial", Data: map[string]string{"k": "v"}}
	state.Flows["edit"] = models.FlowProgress{Step: "ask_name", Data: map[string]string{}}
	require.NoError(t, flows.Save(ctx, "+1", state))

	loaded, err := flows.Load(ctx, "+1")
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}
