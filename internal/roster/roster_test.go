package roster

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rosterbot/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.Open(storage.DriverPure, filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(store, NewLockTable(), zerolog.Nop())
}

func TestLockTable_SerializesPerKey(t *testing.T) {
	locks := NewLockTable()
	var inFlight, maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locks.Do("+1", func() error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight)
	assert.Equal(t, 0, locks.Len())
}

func TestLockTable_DifferentKeysDoNotBlock(t *testing.T) {
	locks := NewLockTable()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locks.Do("a", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = locks.Do("b", func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock for key b blocked behind key a")
	}
	close(release)
}

func TestRegister_CreatesAndMerges(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Phone: "+1", Name: "Jane Doe", Skills: []string{"Python"}, CurrentRole: "greeter"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Volunteer.Available)

	res, err = svc.Register(ctx, RegisterInput{Phone: "+1", Skills: []string{"python", "Cooking"}})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "Jane Doe", res.Volunteer.Name)
	assert.Equal(t, []string{"Python", "Cooking"}, res.Volunteer.Skills)
	assert.Equal(t, "greeter", res.Volunteer.CurrentRole)

	res, err = svc.Register(ctx, RegisterInput{Phone: "+1", CurrentRole: "driver"})
	require.NoError(t, err)
	assert.Equal(t, "driver", res.Volunteer.CurrentRole)
}

func TestRegister_Idempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	in := RegisterInput{Phone: "+1", Name: "Jane Doe", Skills: []string{"Python", "first aid"}}

	first, err := svc.Register(ctx, in)
	require.NoError(t, err)
	second, err := svc.Register(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.Volunteer, second.Volunteer)
	stored, err := svc.Get(ctx, "+1")
	require.NoError(t, err)
	assert.Equal(t, first.Volunteer, stored)
}

func TestRegister_ConcurrentSameUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	const n = 12

	names := make(map[string]bool, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Volunteer %d", i)
		names[name] = true
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, err := svc.Register(ctx, RegisterInput{
				Phone:  "+15550000001",
				Name:   name,
				Skills: []string{fmt.Sprintf("skill-%d-a", i), fmt.Sprintf("skill-%d-b", i)},
			})
			errs <- err
		}(i, name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := svc.Get(ctx, "+15550000001")
	require.NoError(t, err)
	assert.Len(t, v.Skills, 2*n)
	for i := 0; i < n; i++ {
		assert.Contains(t, v.Skills, fmt.Sprintf("skill-%d-a", i))
		assert.Contains(t, v.Skills, fmt.Sprintf("skill-%d-b", i))
	}
	assert.True(t, names[v.Name], "unexpected final name %q", v.Name)
}

func TestDelete_ArchivesAndReRegisterPurges(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Delete(ctx, "+1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Register(ctx, RegisterInput{Phone: "+1", Name: "Jane Doe"})
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, "+1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", deleted.Name)

	_, found, err := svc.Lookup(ctx, "+1")
	require.NoError(t, err)
	assert.False(t, found)

	archive, err := svc.ListDeleted(ctx)
	require.NoError(t, err)
	require.Len(t, archive, 1)
	assert.Equal(t, "+1", archive[0].Phone)

	_, err = svc.Register(ctx, RegisterInput{Phone: "+1", Name: "Jane Again"})
	require.NoError(t, err)
	archive, err = svc.ListDeleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, archive)
}

func TestUpdates_RequireRecord(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateName(ctx, "+1", "New Name")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.AddSkills(ctx, "+1", []string{"x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Register(ctx, RegisterInput{Phone: "+1", Name: "Old Name"})
	require.NoError(t, err)

	v, err := svc.UpdateName(ctx, "+1", "  New Name ")
	require.NoError(t, err)
	assert.Equal(t, "New Name", v.Name)

	v, err = svc.SetAvailability(ctx, "+1", false)
	require.NoError(t, err)
	assert.False(t, v.Available)

	v, err = svc.AddSkills(ctx, "+1", []string{"Driving", "driving"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Driving"}, v.Skills)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
