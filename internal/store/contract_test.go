package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/serroba/shortlink/internal/shortener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linkStore is what every backend under test provides.
type linkStore interface {
	shortener.Repository
	shortener.ClickRepository
}

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newLink(code string, expiresAt *time.Time) *shortener.Link {
	return &shortener.Link{
		Code:        shortener.Code(code),
		Destination: "https://example.com/" + code,
		ExpiresAt:   expiresAt,
		CreatedAt:   baseTime,
	}
}

func at(d time.Duration) *time.Time {
	t := baseTime.Add(d)

	return &t
}

func appendClick(t *testing.T, s linkStore, code, visitor string, clickedAt time.Time) {
	t.Helper()

	err := s.Append(context.Background(), &shortener.ClickEvent{
		Code:      shortener.Code(code),
		VisitorID: visitor,
		ClickedAt: clickedAt,
	})
	require.NoError(t, err)
}

// runRepositoryContract exercises the behavior every backend must share.
// Codes are prefixed so the suite can run against a shared database.
func runRepositoryContract(t *testing.T, prefix string, newStore func(t *testing.T) linkStore) {
	t.Helper()

	ctx := context.Background()
	code := func(name string) string { return prefix + name }

	t.Run("inserts and gets a link", func(t *testing.T) {
		s := newStore(t)
		link := newLink(code("get1"), at(time.Hour))

		require.NoError(t, s.Insert(ctx, link, baseTime))

		got, err := s.GetByCode(ctx, link.Code)

		require.NoError(t, err)
		assert.Equal(t, link.Code, got.Code)
		assert.Equal(t, link.Destination, got.Destination)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, link.ExpiresAt.Equal(*got.ExpiresAt))
		assert.True(t, link.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("keeps nil expiry", func(t *testing.T) {
		s := newStore(t)
		link := newLink(code("forever1"), nil)

		require.NoError(t, s.Insert(ctx, link, baseTime))

		got, err := s.GetByCode(ctx, link.Code)

		require.NoError(t, err)
		assert.Nil(t, got.ExpiresAt)
	})

	t.Run("returns ErrNotFound for unknown code", func(t *testing.T) {
		s := newStore(t)

		got, err := s.GetByCode(ctx, shortener.Code(code("missing")))

		assert.Nil(t, got)
		assert.ErrorIs(t, err, shortener.ErrNotFound)
	})

	t.Run("rejects a code held by a live link", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newLink(code("taken1"), nil), baseTime))

		second := newLink(code("taken1"), nil)
		second.Destination = "https://other.example.com"

		err := s.Insert(ctx, second, baseTime)

		require.ErrorIs(t, err, shortener.ErrCodeTaken)

		got, err := s.GetByCode(ctx, second.Code)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/"+code("taken1"), got.Destination)
	})

	t.Run("replaces a code held by an expired link and drops its clicks", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newLink(code("reuse1"), at(time.Minute)), baseTime))
		appendClick(t, s, code("reuse1"), "10.0.0.1", baseTime)

		later := baseTime.Add(2 * time.Minute)
		replacement := newLink(code("reuse1"), nil)
		replacement.Destination = "https://new.example.com"

		require.NoError(t, s.Insert(ctx, replacement, later))

		got, err := s.GetByCode(ctx, replacement.Code)
		require.NoError(t, err)
		assert.Equal(t, "https://new.example.com", got.Destination)

		clicks, err := s.ListByCode(ctx, replacement.Code)
		require.NoError(t, err)
		assert.Empty(t, clicks)
	})

	t.Run("lets exactly one concurrent insert win", func(t *testing.T) {
		s := newStore(t)

		const workers = 8

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			wins  int
			taken int
		)

		for i := range workers {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				link := newLink(code("race1"), nil)
				link.Destination = "https://example.com/" + string(rune('a'+i))

				err := s.Insert(ctx, link, baseTime)

				mu.Lock()
				defer mu.Unlock()

				switch {
				case err == nil:
					wins++
				case errors.Is(err, shortener.ErrCodeTaken):
					taken++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}

		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, workers-1, taken)
	})

	t.Run("sweeps safely alongside creates, clicks and lookups", func(t *testing.T) {
		s := newStore(t)

		const (
			expiring = 6
			live     = 3
			clicks   = 5
		)

		sweepTime := baseTime.Add(2 * time.Minute)
		expiredCode := func(i int) string { return code("sweep" + string(rune('a'+i))) }
		liveCode := func(i int) string { return code("stay" + string(rune('a'+i))) }

		for i := range expiring {
			require.NoError(t, s.Insert(ctx, newLink(expiredCode(i), at(time.Minute)), baseTime))
			appendClick(t, s, expiredCode(i), "10.0.0.1", baseTime)
			appendClick(t, s, expiredCode(i), "10.0.0.2", baseTime.Add(time.Second))
		}

		for i := range live {
			require.NoError(t, s.Insert(ctx, newLink(liveCode(i), nil), baseTime))
		}

		var wg sync.WaitGroup

		for range 2 {
			wg.Go(func() {
				for range 10 {
					if _, err := s.DeleteExpired(ctx, sweepTime); err != nil {
						t.Errorf("sweep: %v", err)
					}
				}
			})
		}

		// Even codes are taken over by a permanent link while the sweep runs.
		wg.Go(func() {
			for i := 0; i < expiring; i += 2 {
				replacement := newLink(expiredCode(i), nil)
				replacement.Destination = "https://replacement.example/" + expiredCode(i)
				replacement.CreatedAt = sweepTime

				if err := s.Insert(ctx, replacement, sweepTime); err != nil {
					t.Errorf("insert over expired %s: %v", expiredCode(i), err)
				}
			}
		})

		wg.Go(func() {
			for i := range live {
				for n := range clicks {
					err := s.Append(ctx, &shortener.ClickEvent{
						Code:      shortener.Code(liveCode(i)),
						VisitorID: "10.0.1.1",
						ClickedAt: sweepTime.Add(time.Duration(n) * time.Second),
					})
					if err != nil {
						t.Errorf("append: %v", err)
					}

					if _, err := s.GetByCode(ctx, shortener.Code(liveCode(i))); err != nil {
						t.Errorf("live link %s: %v", liveCode(i), err)
					}
				}
			}
		})

		wg.Go(func() {
			for i := range expiring {
				_, err := s.GetByCode(ctx, shortener.Code(expiredCode(i)))
				if err != nil && !errors.Is(err, shortener.ErrNotFound) {
					t.Errorf("lookup %s: %v", expiredCode(i), err)
				}
			}
		})

		wg.Wait()

		for i := range expiring {
			c := shortener.Code(expiredCode(i))

			got, err := s.GetByCode(ctx, c)
			if i%2 == 0 {
				require.NoError(t, err, c)
				assert.Equal(t, "https://replacement.example/"+string(c), got.Destination)
			} else {
				require.ErrorIs(t, err, shortener.ErrNotFound, c)
			}

			history, err := s.ListByCode(ctx, c)
			require.NoError(t, err)
			assert.Empty(t, history, "clicks of purged link %s", c)
		}

		for i := range live {
			history, err := s.ListByCode(ctx, shortener.Code(liveCode(i)))
			require.NoError(t, err)
			assert.Len(t, history, clicks)
		}
	})

	t.Run("delete removes link and clicks", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newLink(code("del1"), nil), baseTime))
		appendClick(t, s, code("del1"), "10.0.0.1", baseTime)

		require.NoError(t, s.Delete(ctx, shortener.Code(code("del1"))))

		_, err := s.GetByCode(ctx, shortener.Code(code("del1")))
		require.ErrorIs(t, err, shortener.ErrNotFound)

		clicks, err := s.ListByCode(ctx, shortener.Code(code("del1")))
		require.NoError(t, err)
		assert.Empty(t, clicks)
	})

	t.Run("delete of unknown code is not an error", func(t *testing.T) {
		s := newStore(t)

		assert.NoError(t, s.Delete(ctx, shortener.Code(code("never"))))
	})

	t.Run("delete expired purges only dead links, once", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newLink(code("exp1"), at(time.Minute)), baseTime))
		require.NoError(t, s.Insert(ctx, newLink(code("exp2"), at(time.Hour)), baseTime))
		require.NoError(t, s.Insert(ctx, newLink(code("live1"), at(48*time.Hour)), baseTime))
		require.NoError(t, s.Insert(ctx, newLink(code("live2"), nil), baseTime))
		appendClick(t, s, code("exp1"), "10.0.0.1", baseTime)
		appendClick(t, s, code("live1"), "10.0.0.1", baseTime)

		now := baseTime.Add(2 * time.Hour)

		purged, err := s.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), purged)

		again, err := s.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(0), again)

		_, err = s.GetByCode(ctx, shortener.Code(code("exp1")))
		require.ErrorIs(t, err, shortener.ErrNotFound)

		for _, live := range []string{code("live1"), code("live2")} {
			_, err = s.GetByCode(ctx, shortener.Code(live))
			require.NoError(t, err, live)
		}

		clicks, err := s.ListByCode(ctx, shortener.Code(code("exp1")))
		require.NoError(t, err)
		assert.Empty(t, clicks)

		clicks, err = s.ListByCode(ctx, shortener.Code(code("live1")))
		require.NoError(t, err)
		assert.Len(t, clicks, 1)
	})

	t.Run("does not purge a link expiring exactly now", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, newLink(code("edge1"), at(time.Minute)), baseTime))

		purged, err := s.DeleteExpired(ctx, baseTime.Add(time.Minute))

		require.NoError(t, err)
		assert.Equal(t, int64(0), purged)
	})

	t.Run("lists clicks by time then insertion order", func(t *testing.T) {
		s := newStore(t)
		c := code("clicks1")

		appendClick(t, s, c, "b", baseTime.Add(2*time.Second))
		appendClick(t, s, c, "first-tie", baseTime.Add(time.Second))
		appendClick(t, s, c, "second-tie", baseTime.Add(time.Second))
		appendClick(t, s, c, "a", baseTime)
		appendClick(t, s, code("other"), "x", baseTime)

		clicks, err := s.ListByCode(ctx, shortener.Code(c))

		require.NoError(t, err)
		require.Len(t, clicks, 4)

		visitors := make([]string, 0, len(clicks))
		for _, click := range clicks {
			visitors = append(visitors, click.VisitorID)
			assert.Equal(t, shortener.Code(c), click.Code)
			assert.NotZero(t, click.ID)
		}

		assert.Equal(t, []string{"a", "first-tie", "second-tie", "b"}, visitors)
		assert.True(t, baseTime.Equal(clicks[0].ClickedAt))
	})
}
