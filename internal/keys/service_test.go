package keys_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EternisAI/keygate/internal/keycodec"
	"github.com/EternisAI/keygate/internal/keys"
	"github.com/EternisAI/keygate/internal/keys/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) Record(key string, _ keys.ClientMeta, _ keys.KeyRecord) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, key)
	return "session-" + key
}

func newService(t *testing.T) (*keys.Service, *fakeClock, *recorder) {
	t.Helper()
	clock := newClock()
	rec := &recorder{}
	svc := keys.NewService(memstore.New(), rec, keys.Config{Now: clock.Now})
	return svc, clock, rec
}

func mintAt(t *testing.T, clock *fakeClock, validitySeconds int64) string {
	t.Helper()
	key, err := keycodec.Codec{Now: clock.Now}.Mint(validitySeconds)
	require.NoError(t, err)
	return key
}

func TestCreate(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 2, Unit: keys.UnitHours, Description: "ops", CreatedBy: "10.0.0.1"})
	require.NoError(t, err)

	assert.Len(t, rec.Key, keycodec.KeyLength)
	assert.Equal(t, byte(keycodec.ClassHours), rec.Key[0])
	assert.Equal(t, keys.StatusActive, rec.Status)
	assert.Equal(t, "ops", rec.Description)
	assert.Equal(t, "10.0.0.1", rec.CreatedBy)
	assert.Equal(t, clock.Now().Add(2*time.Hour), rec.ExpiresAt)
	assert.Equal(t, (2 * time.Hour).Milliseconds(), rec.TotalDuration)
	assert.Zero(t, rec.UsageCount)
	assert.Nil(t, rec.ActivatedAt)

	stored, err := svc.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, rec.Key, stored.Key)
}

func TestCreateDurationLimits(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		amount int64
		unit   keys.Unit
		ok     bool
	}{
		{60, keys.UnitMinutes, true},
		{61, keys.UnitMinutes, false},
		{720, keys.UnitHours, true},
		{721, keys.UnitHours, false},
		{30, keys.UnitDays, true},
		{31, keys.UnitDays, false},
		{12, keys.UnitMonths, true},
		{13, keys.UnitMonths, false},
		{0, keys.UnitDays, false},
		{-1, keys.UnitHours, false},
		{5, keys.Unit("weeks"), false},
	}
	for _, tc := range cases {
		_, err := svc.Create(ctx, keys.CreateParams{Duration: tc.amount, Unit: tc.unit})
		if tc.ok {
			assert.NoError(t, err, "%d %s", tc.amount, tc.unit)
		} else {
			assert.ErrorIs(t, err, keys.ErrInvalidDuration, "%d %s", tc.amount, tc.unit)
		}
	}
}

func TestCreateCustomKeyConflict(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays, CustomKey: "my-custom-key"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays, CustomKey: "  my-custom-key "})
	assert.ErrorIs(t, err, keys.ErrConflict)
}

func TestValidate(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitHours})
	require.NoError(t, err)

	first, err := svc.Validate(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.UsageCount)
	require.NotNil(t, first.ActivatedAt)
	assert.Equal(t, clock.Now(), *first.ActivatedAt)

	clock.Advance(10 * time.Minute)
	second, err := svc.Validate(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.UsageCount)
	assert.Equal(t, *first.ActivatedAt, *second.ActivatedAt)
	assert.Equal(t, clock.Now(), *second.LastUsed)
}

func TestValidateNotFound(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Validate(context.Background(), "unknown")
	assert.ErrorIs(t, err, keys.ErrNotFound)
}

func TestValidateExpiredThenInvalidState(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitMinutes})
	require.NoError(t, err)

	clock.Advance(time.Minute)

	_, err = svc.Validate(ctx, rec.Key)
	require.ErrorIs(t, err, keys.ErrExpired)
	snapshot := keys.RecordOf(err)
	require.NotNil(t, snapshot)
	assert.Equal(t, rec.ExpiresAt, snapshot.ExpiresAt)

	stored, err := svc.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, keys.StatusExpired, stored.Status)
	assert.Zero(t, stored.UsageCount)

	_, err = svc.Validate(ctx, rec.Key)
	assert.ErrorIs(t, err, keys.ErrInvalidState)
}

func TestValidateDisabled(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)

	disabled := keys.StatusDisabled
	_, err = svc.Update(ctx, rec.Key, keys.UpdateParams{Status: &disabled})
	require.NoError(t, err)

	_, err = svc.Validate(ctx, rec.Key)
	assert.ErrorIs(t, err, keys.ErrInvalidState)
}

func TestValidateDisabledPastDue(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitHours})
	require.NoError(t, err)

	disabled := keys.StatusDisabled
	_, err = svc.Update(ctx, rec.Key, keys.UpdateParams{Status: &disabled})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	// status is checked before expiry, so the key keeps its disabled status
	_, err = svc.Validate(ctx, rec.Key)
	require.ErrorIs(t, err, keys.ErrInvalidState)
	assert.Equal(t, keys.StatusDisabled, keys.RecordOf(err).Status)

	got, err := svc.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, keys.StatusDisabled, got.Status)
	assert.Zero(t, got.UsageCount)
}

func TestValidateSessionRecordsSession(t *testing.T) {
	svc, _, sessions := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)

	v, err := svc.ValidateSession(ctx, rec.Key, keys.ClientMeta{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "session-"+rec.Key, v.SessionID)
	assert.False(t, v.AutoRegistered)
	assert.Equal(t, []string{rec.Key}, sessions.calls)
}

func TestConcurrentValidateCountsEveryUse(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, rec.Key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := svc.Get(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stored.UsageCount)
}

func TestCheckUsageAutoRegisters(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	key := mintAt(t, clock, 7*24*60*60)

	res, err := svc.CheckUsageAndAutoRegister(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Existing)
	assert.True(t, res.AutoRegistered)
	assert.True(t, res.Record.AutoRegistered)
	assert.Equal(t, keys.KeyTypeShort, res.Record.KeyType)
	assert.Equal(t, key[:keycodec.IdentifierLength], res.Record.Identifier)
	assert.Equal(t, keys.StatusActive, res.Record.Status)
	assert.Zero(t, res.Record.UsageCount)

	again, err := svc.CheckUsageAndAutoRegister(ctx, key)
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.False(t, again.AutoRegistered)
	assert.Equal(t, res.Record.ExpiresAt, again.Record.ExpiresAt)
}

func TestCheckUsageRejectsInvalidKeys(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	key := mintAt(t, clock, 3600)
	tampered := []byte(key)
	if tampered[21] == 'a' {
		tampered[21] = 'b'
	} else {
		tampered[21] = 'a'
	}

	_, err := svc.CheckUsageAndAutoRegister(ctx, "short")
	assert.ErrorIs(t, err, keys.ErrFormat)

	_, err = svc.CheckUsageAndAutoRegister(ctx, string(tampered))
	assert.ErrorIs(t, err, keys.ErrChecksum)

	clock.Advance(2 * time.Hour)
	_, err = svc.CheckUsageAndAutoRegister(ctx, key)
	assert.ErrorIs(t, err, keys.ErrExpired)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Total)
}

func TestValidateAndRegister(t *testing.T) {
	svc, clock, sessions := newService(t)
	ctx := context.Background()

	key := mintAt(t, clock, 30*24*60*60)

	v, err := svc.ValidateAndRegister(ctx, key, keys.ClientMeta{IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.True(t, v.AutoRegistered)
	assert.Equal(t, int64(1), v.Record.UsageCount)
	assert.NotNil(t, v.Record.ActivatedAt)
	assert.Equal(t, "session-"+key, v.SessionID)
	assert.Len(t, sessions.calls, 1)

	_, err = svc.ValidateAndRegister(ctx, key, keys.ClientMeta{})
	require.ErrorIs(t, err, keys.ErrConflict)
	existing := keys.RecordOf(err)
	require.NotNil(t, existing)
	assert.Equal(t, int64(1), existing.UsageCount)
}

func TestValidateAndRegisterInExpirySecond(t *testing.T) {
	svc, clock, sessions := newService(t)
	ctx := context.Background()

	key := mintAt(t, clock, 3600)
	d, err := keycodec.Codec{Now: clock.Now}.Decode(key)
	require.NoError(t, err)

	// Halfway through the second the key expires in.
	clock.Advance(d.Expiry.Sub(clock.Now()) + 500*time.Millisecond)

	_, err = svc.ValidateAndRegister(ctx, key, keys.ClientMeta{})
	require.ErrorIs(t, err, keys.ErrExpired)

	_, err = svc.Get(ctx, key)
	assert.ErrorIs(t, err, keys.ErrNotFound)
	assert.Empty(t, sessions.calls)

	_, err = svc.CheckUsageAndAutoRegister(ctx, key)
	assert.ErrorIs(t, err, keys.ErrExpired)
	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Total)
}

func TestValidateAndRegisterRace(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	key := mintAt(t, clock, 24*60*60)

	const n = 32
	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ValidateAndRegister(ctx, key, keys.ClientMeta{})
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, keys.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())

	recs, total, err := svc.List(ctx, keys.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), recs[0].UsageCount)
}

func TestExtend(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitHours})
	require.NoError(t, err)

	extended, err := svc.Extend(ctx, rec.Key, 2, keys.UnitHours, "admin")
	require.NoError(t, err)
	assert.Equal(t, rec.ExpiresAt.Add(2*time.Hour), extended.ExpiresAt)
	assert.Equal(t, (3 * time.Hour).Milliseconds(), extended.TotalDuration)
	require.Len(t, extended.ExtensionHistory, 1)

	entry := extended.ExtensionHistory[0]
	assert.Equal(t, clock.Now(), entry.ExtendedAt)
	assert.Equal(t, int64(2), entry.Duration)
	assert.Equal(t, keys.UnitHours, entry.Unit)
	assert.Equal(t, "admin", entry.ExtendedBy)
	assert.Equal(t, rec.ExpiresAt, entry.PreviousExpiresAt)
	require.NotNil(t, extended.LastExtended)
}

func TestExtendReactivatesExpiredKey(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 10, Unit: keys.UnitMinutes})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = svc.Validate(ctx, rec.Key)
	require.ErrorIs(t, err, keys.ErrExpired)

	extended, err := svc.Extend(ctx, rec.Key, 1, keys.UnitDays, "")
	require.NoError(t, err)
	assert.Equal(t, keys.StatusActive, extended.Status)
	// extension counts from now, not from the stale expiry
	assert.Equal(t, clock.Now().Add(24*time.Hour), extended.ExpiresAt)

	_, err = svc.Validate(ctx, rec.Key)
	assert.NoError(t, err)
}

func TestExtendErrors(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Extend(ctx, "missing", 1, keys.UnitDays, "")
	assert.ErrorIs(t, err, keys.ErrNotFound)

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)
	_, err = svc.Extend(ctx, rec.Key, 31, keys.UnitDays, "")
	assert.ErrorIs(t, err, keys.ErrInvalidDuration)
}

func TestUpdate(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitHours, Description: "old"})
	require.NoError(t, err)

	desc := "new"
	disabled := keys.StatusDisabled
	updated, err := svc.Update(ctx, rec.Key, keys.UpdateParams{Description: &desc, Status: &disabled})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Description)
	assert.Equal(t, keys.StatusDisabled, updated.Status)
	require.NotNil(t, updated.UpdatedAt)

	active := keys.StatusActive
	updated, err = svc.Update(ctx, rec.Key, keys.UpdateParams{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, keys.StatusActive, updated.Status)

	bogus := keys.Status("paused")
	_, err = svc.Update(ctx, rec.Key, keys.UpdateParams{Status: &bogus})
	assert.ErrorIs(t, err, keys.ErrInvalidStatus)

	clock.Advance(2 * time.Hour)
	_, err = svc.Update(ctx, rec.Key, keys.UpdateParams{Status: &disabled})
	require.NoError(t, err)
	_, err = svc.Update(ctx, rec.Key, keys.UpdateParams{Status: &active})
	assert.ErrorIs(t, err, keys.ErrInvalidState)

	_, err = svc.Update(ctx, "missing", keys.UpdateParams{Description: &desc})
	assert.ErrorIs(t, err, keys.ErrNotFound)
}

func TestListPagination(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	var created []string
	for i := 0; i < 5; i++ {
		rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
		require.NoError(t, err)
		created = append(created, rec.Key)
		clock.Advance(time.Second)
	}

	page, total, err := svc.List(ctx, keys.ListParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, created[4], page[0].Key)
	assert.Equal(t, created[3], page[1].Key)

	page, _, err = svc.List(ctx, keys.ListParams{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, created[0], page[0].Key)

	page, _, err = svc.List(ctx, keys.ListParams{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)

	_, _, err = svc.List(ctx, keys.ListParams{Status: "bogus"})
	assert.ErrorIs(t, err, keys.ErrInvalidStatus)
}

func TestListByStatus(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)
	_, err = svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)

	disabled := keys.StatusDisabled
	_, err = svc.Update(ctx, a.Key, keys.UpdateParams{Status: &disabled})
	require.NoError(t, err)

	recs, total, err := svc.List(ctx, keys.ListParams{Status: keys.StatusDisabled})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, a.Key, recs[0].Key)
}

func TestNormalizePage(t *testing.T) {
	page, limit := keys.NormalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, limit)

	page, limit = keys.NormalizePage(4, 500)
	assert.Equal(t, 4, page)
	assert.Equal(t, 100, limit)
}

func TestStatsEmpty(t *testing.T) {
	svc, _, _ := newService(t)

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, keys.Stats{}, st)
}

func TestStats(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, keys.CreateParams{Duration: 5, Unit: keys.UnitMinutes})
	require.NoError(t, err)
	used, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)
	_, err = svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)

	_, err = svc.Validate(ctx, used.Key)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Total)
	assert.Equal(t, int64(2), st.Active)
	assert.Equal(t, int64(1), st.Expired)
	assert.Equal(t, int64(1), st.Used)
	assert.Equal(t, int64(2), st.Unused)
}

func TestDelete(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)

	removed, err := svc.Delete(ctx, rec.Key)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.Delete(ctx, rec.Key)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = svc.Get(ctx, rec.Key)
	assert.ErrorIs(t, err, keys.ErrNotFound)
}

func TestCleanup(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	old, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitHours})
	require.NoError(t, err)

	clock.Advance(10 * 24 * time.Hour)

	recent, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitMinutes})
	require.NoError(t, err)
	live, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	res, err := svc.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.UpdatedExpired)
	assert.Zero(t, res.DeletedExpired)

	res, err = svc.Cleanup(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, res.UpdatedExpired)
	assert.Equal(t, int64(1), res.DeletedExpired)

	_, err = svc.Get(ctx, old.Key)
	assert.ErrorIs(t, err, keys.ErrNotFound)
	r, err := svc.Get(ctx, recent.Key)
	require.NoError(t, err)
	assert.Equal(t, keys.StatusExpired, r.Status)
	l, err := svc.Get(ctx, live.Key)
	require.NoError(t, err)
	assert.Equal(t, keys.StatusActive, l.Status)
}

func TestHeartbeatAndListOnline(t *testing.T) {
	svc, clock, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)
	b, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitDays})
	require.NoError(t, err)

	at, err := svc.Heartbeat(ctx, a.Key, "device-1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), at)

	clock.Advance(90 * time.Second)
	_, err = svc.Heartbeat(ctx, b.Key, "")
	require.NoError(t, err)

	online, since, err := svc.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(-2*time.Minute), since)
	require.Len(t, online, 2)
	assert.Equal(t, b.Key, online[0].Key)
	assert.Equal(t, "device-1", online[1].LastOnlineDeviceID)

	clock.Advance(time.Minute)
	online, _, err = svc.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, b.Key, online[0].Key)
	assert.True(t, keys.IsOnline(&online[0], clock.Now(), 2*time.Minute))
	assert.False(t, keys.IsOnline(a, clock.Now(), 2*time.Minute))

	_, err = svc.Heartbeat(ctx, "missing", "")
	assert.ErrorIs(t, err, keys.ErrNotFound)
}

type slowRepo struct {
	keys.Repository
}

func (slowRepo) Get(ctx context.Context, _ string) (*keys.KeyRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStoreTimeoutMapsToUnavailable(t *testing.T) {
	svc := keys.NewService(slowRepo{Repository: memstore.New()}, nil, keys.Config{StoreTimeout: 10 * time.Millisecond})

	_, err := svc.Get(context.Background(), "any")
	assert.ErrorIs(t, err, keys.ErrUnavailable)
}

func TestRunExpiry(t *testing.T) {
	clock := newClock()
	svc := keys.NewService(memstore.New(), nil, keys.Config{Now: clock.Now})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := svc.Create(ctx, keys.CreateParams{Duration: 1, Unit: keys.UnitMinutes})
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	go svc.RunExpiry(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		r, err := svc.Get(ctx, rec.Key)
		return err == nil && r.Status == keys.StatusExpired
	}, time.Second, 5*time.Millisecond)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "short", keys.MaskKey("short"))
	assert.Equal(t, "Habcdefg...", keys.MaskKey("Habcdefghijklmnop"))
}
