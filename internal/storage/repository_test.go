package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"wishlist-pricewatch/internal/config"
)

func setupPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pricewatch"),
		tcpostgres.WithUsername("pricewatch"),
		tcpostgres.WithPassword("pricewatch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	version, err := Migrate(dsn)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)

	store := NewStore(pool)
	t.Cleanup(store.Close)
	return store
}

func TestStorePostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store := setupPostgres(t)
	ctx := context.Background()

	t.Run("ledger append and latest", func(t *testing.T) {
		_, found, err := store.LatestObservation(ctx, "570")
		require.NoError(t, err)
		assert.False(t, found)

		base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
		rows := [][2]string{{"100", "100"}, {"90", "90"}, {"60", "60"}}
		for i, row := range rows {
			obs, err := store.AppendObservation(ctx, PriceObservation{
				ItemID:      "570",
				Price:       decimal.RequireFromString(row[0]),
				LowestPrice: decimal.RequireFromString(row[1]),
				ObservedAt:  base.Add(time.Duration(i) * time.Hour),
			})
			require.NoError(t, err)
			assert.NotZero(t, obs.ID)
		}

		latest, found, err := store.LatestObservation(ctx, "570")
		require.NoError(t, err)
		require.True(t, found)
		assert.True(t, latest.Price.Equal(decimal.NewFromInt(60)))
		assert.True(t, latest.LowestPrice.Equal(decimal.NewFromInt(60)))

		series, err := store.ListObservationsBetween(ctx, "570", base, base.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, series, 3)
		assert.True(t, series[0].Price.Equal(decimal.NewFromInt(100)))

		recent, err := store.ListRecentObservations(ctx, "570", 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, latest.ID, recent[0].ID)
	})

	t.Run("latest follows append order when the clock steps back", func(t *testing.T) {
		late := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		_, err := store.AppendObservation(ctx, PriceObservation{
			ItemID:      "730",
			Price:       decimal.NewFromInt(40),
			LowestPrice: decimal.NewFromInt(40),
			ObservedAt:  late,
		})
		require.NoError(t, err)
		appended, err := store.AppendObservation(ctx, PriceObservation{
			ItemID:      "730",
			Price:       decimal.NewFromInt(30),
			LowestPrice: decimal.NewFromInt(30),
			ObservedAt:  late.Add(-time.Hour),
		})
		require.NoError(t, err)

		latest, found, err := store.LatestObservation(ctx, "730")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, appended.ID, latest.ID)
		assert.True(t, latest.LowestPrice.Equal(decimal.NewFromInt(30)))

		recent, err := store.ListRecentObservations(ctx, "730", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, appended.ID, recent[0].ID)
	})

	t.Run("ledger rejects lowest above price", func(t *testing.T) {
		_, err := store.AppendObservation(ctx, PriceObservation{
			ItemID:      "bad",
			Price:       decimal.NewFromInt(5),
			LowestPrice: decimal.NewFromInt(6),
		})
		assert.Error(t, err)
	})

	t.Run("watchlist", func(t *testing.T) {
		item, err := store.AddItem(ctx, Item{ID: "1245620", Name: "Elden Ring"})
		require.NoError(t, err)
		assert.False(t, item.AddedAt.IsZero())

		_, err = store.AddItem(ctx, Item{ID: "1245620", Name: "Elden Ring"})
		assert.ErrorIs(t, err, ErrItemExists)

		items, err := store.ListItems(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)

		require.NoError(t, store.RemoveItem(ctx, "1245620"))
		assert.ErrorIs(t, store.RemoveItem(ctx, "1245620"), ErrItemNotFound)
		_, err = store.GetItem(ctx, "1245620")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("alerts audit", func(t *testing.T) {
		msg := "discord: 500"
		rec, err := store.InsertAlert(ctx, AlertRecord{
			ItemID:     "570",
			ObservedAt: time.Now().UTC(),
			Price:      decimal.RequireFromString("29.99"),
			Reasons:    []string{"significant_drop", "new_all_time_low"},
			Channels:   []string{"discord"},
			Error:      &msg,
		})
		require.NoError(t, err)
		assert.NotZero(t, rec.ID)

		alerts, err := store.ListRecentAlerts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, []string{"significant_drop", "new_all_time_low"}, alerts[0].Reasons)
		require.NotNil(t, alerts[0].Error)
		assert.Equal(t, msg, *alerts[0].Error)
		assert.False(t, alerts[0].Delivered)
	})

	t.Run("advisory lock", func(t *testing.T) {
		unlock, acquired, err := store.TryAdvisoryLock(ctx, 42)
		require.NoError(t, err)
		require.True(t, acquired)
		unlock()
	})
}
