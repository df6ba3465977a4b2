// Package storetest holds behaviour checks shared by every keys.Repository
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EternisAI/keygate/internal/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) keys.Repository

var base = time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

func record(key string, createdAt time.Time, ttl time.Duration) *keys.KeyRecord {
	return &keys.KeyRecord{
		Key:           key,
		Description:   "test key " + key,
		Status:        keys.StatusActive,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(ttl),
		TotalDuration: ttl.Milliseconds(),
	}
}

// Run exercises the full Repository contract against repositories from newRepo.
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("InsertAndGet", func(t *testing.T) {
		repo := newRepo(t)
		rec := record("k-insert", base, time.Hour)
		rec.AutoRegistered = true
		rec.KeyType = keys.KeyTypeShort
		rec.Identifier = "Habc"
		rec.CreatedBy = "10.1.1.1"

		require.NoError(t, repo.Insert(ctx, rec))

		got, err := repo.Get(ctx, "k-insert")
		require.NoError(t, err)
		assert.Equal(t, rec.Description, got.Description)
		assert.Equal(t, keys.StatusActive, got.Status)
		assert.True(t, got.CreatedAt.Equal(base))
		assert.True(t, got.ExpiresAt.Equal(base.Add(time.Hour)))
		assert.Equal(t, time.Hour.Milliseconds(), got.TotalDuration)
		assert.True(t, got.AutoRegistered)
		assert.Equal(t, keys.KeyTypeShort, got.KeyType)
		assert.Equal(t, "Habc", got.Identifier)
		assert.Equal(t, "10.1.1.1", got.CreatedBy)
		assert.Nil(t, got.ActivatedAt)
		assert.Nil(t, got.LastUsed)
		assert.Empty(t, got.ExtensionHistory)

		_, err = repo.Get(ctx, "k-missing")
		assert.ErrorIs(t, err, keys.ErrNotFound)
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-dup", base, time.Hour)))
		err := repo.Insert(ctx, record("k-dup", base, 2*time.Hour))
		assert.ErrorIs(t, err, keys.ErrConflict)
	})

	t.Run("ConcurrentInsertHasOneWinner", func(t *testing.T) {
		repo := newRepo(t)
		const n = 16
		var (
			wg        sync.WaitGroup
			winners   atomic.Int32
			conflicts atomic.Int32
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Insert(ctx, record("k-race", base, time.Hour))
				switch {
				case err == nil:
					winners.Add(1)
				case errors.Is(err, keys.ErrConflict):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
		assert.Equal(t, int32(n-1), conflicts.Load())
	})

	t.Run("RecordUsage", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-use", base, time.Hour)))

		first := base.Add(time.Minute)
		got, err := repo.RecordUsage(ctx, "k-use", first)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.UsageCount)
		require.NotNil(t, got.ActivatedAt)
		assert.True(t, got.ActivatedAt.Equal(first))

		second := base.Add(2 * time.Minute)
		got, err = repo.RecordUsage(ctx, "k-use", second)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.UsageCount)
		assert.True(t, got.ActivatedAt.Equal(first))
		assert.True(t, got.LastUsed.Equal(second))

		_, err = repo.RecordUsage(ctx, "k-use", base.Add(time.Hour))
		assert.ErrorIs(t, err, keys.ErrNotFound)

		_, err = repo.RecordUsage(ctx, "k-missing", first)
		assert.ErrorIs(t, err, keys.ErrNotFound)
	})

	t.Run("ConcurrentRecordUsage", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-many", base, time.Hour)))

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.RecordUsage(ctx, "k-many", base.Add(time.Second))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.Get(ctx, "k-many")
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.UsageCount)
	})

	t.Run("MarkExpired", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-exp", base, time.Minute)))

		now := base.Add(2 * time.Minute)
		flipped, err := repo.MarkExpired(ctx, "k-exp", now)
		require.NoError(t, err)
		assert.True(t, flipped)

		flipped, err = repo.MarkExpired(ctx, "k-exp", now)
		require.NoError(t, err)
		assert.False(t, flipped)

		got, err := repo.Get(ctx, "k-exp")
		require.NoError(t, err)
		assert.Equal(t, keys.StatusExpired, got.Status)

		_, err = repo.RecordUsage(ctx, "k-exp", base)
		assert.ErrorIs(t, err, keys.ErrNotFound)
	})

	t.Run("Extend", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-ext", base, time.Hour)))

		at := base.Add(10 * time.Minute)
		got, err := repo.Extend(ctx, "k-ext", 2*time.Hour, keys.Extension{
			ExtendedAt: at, Duration: 2, Unit: keys.UnitHours, ExtendedBy: "admin",
		})
		require.NoError(t, err)
		assert.True(t, got.ExpiresAt.Equal(base.Add(3*time.Hour)))
		assert.Equal(t, (3 * time.Hour).Milliseconds(), got.TotalDuration)
		require.NotNil(t, got.LastExtended)
		assert.True(t, got.LastExtended.Equal(at))
		require.Len(t, got.ExtensionHistory, 1)
		assert.True(t, got.ExtensionHistory[0].PreviousExpiresAt.Equal(base.Add(time.Hour)))
		assert.Equal(t, keys.UnitHours, got.ExtensionHistory[0].Unit)
		assert.Equal(t, int64(2), got.ExtensionHistory[0].Duration)
		assert.Equal(t, "admin", got.ExtensionHistory[0].ExtendedBy)

		// an expired key is extended from the extension time
		flipped, err := repo.MarkExpired(ctx, "k-ext", base.Add(4*time.Hour))
		require.NoError(t, err)
		require.True(t, flipped)

		later := base.Add(5 * time.Hour)
		got, err = repo.Extend(ctx, "k-ext", 24*time.Hour, keys.Extension{
			ExtendedAt: later, Duration: 1, Unit: keys.UnitDays,
		})
		require.NoError(t, err)
		assert.Equal(t, keys.StatusActive, got.Status)
		assert.True(t, got.ExpiresAt.Equal(later.Add(24*time.Hour)))
		require.Len(t, got.ExtensionHistory, 2)
		assert.True(t, got.ExtensionHistory[1].PreviousExpiresAt.Equal(base.Add(3*time.Hour)))

		_, err = repo.Extend(ctx, "k-missing", time.Hour, keys.Extension{ExtendedAt: at, Duration: 1, Unit: keys.UnitHours})
		assert.ErrorIs(t, err, keys.ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-upd", base, time.Hour)))

		desc := "renamed"
		at := base.Add(time.Minute)
		got, err := repo.Update(ctx, "k-upd", keys.RecordUpdate{Description: &desc, UpdatedAt: at})
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Description)
		assert.Equal(t, keys.StatusActive, got.Status)
		require.NotNil(t, got.UpdatedAt)
		assert.True(t, got.UpdatedAt.Equal(at))

		disabled := keys.StatusDisabled
		got, err = repo.Update(ctx, "k-upd", keys.RecordUpdate{Status: &disabled, UpdatedAt: at})
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Description)
		assert.Equal(t, keys.StatusDisabled, got.Status)

		_, err = repo.Update(ctx, "k-missing", keys.RecordUpdate{Description: &desc, UpdatedAt: at})
		assert.ErrorIs(t, err, keys.ErrNotFound)
	})

	t.Run("TouchAndListOnline", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-a", base, time.Hour)))
		require.NoError(t, repo.Insert(ctx, record("k-b", base, time.Hour)))
		require.NoError(t, repo.Insert(ctx, record("k-c", base, time.Hour)))

		require.NoError(t, repo.Touch(ctx, "k-a", "dev-a", base.Add(time.Minute)))
		require.NoError(t, repo.Touch(ctx, "k-b", "dev-b", base.Add(3*time.Minute)))
		require.NoError(t, repo.Touch(ctx, "k-b", "", base.Add(4*time.Minute)))
		assert.ErrorIs(t, repo.Touch(ctx, "k-missing", "", base), keys.ErrNotFound)

		online, err := repo.ListOnline(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)
		require.Len(t, online, 1)
		assert.Equal(t, "k-b", online[0].Key)
		assert.Equal(t, "dev-b", online[0].LastOnlineDeviceID)
		assert.True(t, online[0].LastOnline.Equal(base.Add(4*time.Minute)))

		online, err = repo.ListOnline(ctx, base)
		require.NoError(t, err)
		require.Len(t, online, 2)
		assert.Equal(t, "k-b", online[0].Key)
		assert.Equal(t, "k-a", online[1].Key)
	})

	t.Run("ListPagination", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 5; i++ {
			rec := record(fmt.Sprintf("k-list-%d", i), base.Add(time.Duration(i)*time.Second), time.Hour)
			require.NoError(t, repo.Insert(ctx, rec))
		}
		disabled := keys.StatusDisabled
		_, err := repo.Update(ctx, "k-list-1", keys.RecordUpdate{Status: &disabled, UpdatedAt: base})
		require.NoError(t, err)

		page, total, err := repo.List(ctx, keys.ListFilter{Offset: 0, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, page, 2)
		assert.Equal(t, "k-list-4", page[0].Key)
		assert.Equal(t, "k-list-3", page[1].Key)

		page, _, err = repo.List(ctx, keys.ListFilter{Offset: 4, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "k-list-0", page[0].Key)

		page, total, err = repo.List(ctx, keys.ListFilter{Status: keys.StatusDisabled, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, page, 1)
		assert.Equal(t, "k-list-1", page[0].Key)

		page, _, err = repo.List(ctx, keys.ListFilter{Offset: 10, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("Stats", func(t *testing.T) {
		repo := newRepo(t)

		st, err := repo.Stats(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, keys.Stats{}, st)

		require.NoError(t, repo.Insert(ctx, record("k-s1", base, time.Minute)))
		require.NoError(t, repo.Insert(ctx, record("k-s2", base, time.Hour)))
		require.NoError(t, repo.Insert(ctx, record("k-s3", base, time.Hour)))
		_, err = repo.RecordUsage(ctx, "k-s2", base)
		require.NoError(t, err)

		st, err = repo.Stats(ctx, base.Add(5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(3), st.Total)
		assert.Equal(t, int64(2), st.Active)
		assert.Equal(t, int64(1), st.Expired)
		assert.Equal(t, int64(1), st.Used)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-del", base, time.Hour)))

		removed, err := repo.Delete(ctx, "k-del")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = repo.Delete(ctx, "k-del")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("ExpireDueAndDeleteExpired", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, record("k-old", base, time.Hour)))
		require.NoError(t, repo.Insert(ctx, record("k-recent", base.Add(48*time.Hour), time.Hour)))
		require.NoError(t, repo.Insert(ctx, record("k-live", base.Add(48*time.Hour), 30*24*time.Hour)))

		now := base.Add(50 * time.Hour)
		n, err := repo.ExpireDue(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = repo.ExpireDue(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = repo.DeleteExpiredBefore(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.Get(ctx, "k-old")
		assert.ErrorIs(t, err, keys.ErrNotFound)
		got, err := repo.Get(ctx, "k-recent")
		require.NoError(t, err)
		assert.Equal(t, keys.StatusExpired, got.Status)
		got, err = repo.Get(ctx, "k-live")
		require.NoError(t, err)
		assert.Equal(t, keys.StatusActive, got.Status)
	})

	t.Run("Ping", func(t *testing.T) {
		repo := newRepo(t)
		assert.NoError(t, repo.Ping(ctx))
	})
}
