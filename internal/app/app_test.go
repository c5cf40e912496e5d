package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishlist-pricewatch/internal/alerting"
	"wishlist-pricewatch/internal/config"
	"wishlist-pricewatch/internal/storage"
)

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Alerting: config.AlertingConfig{DropThresholdPct: 20},
		Export:   config.ExportConfig{MaxDataPoints: 100},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func TestSimulatePrintsDecisions(t *testing.T) {
	a, out := testApp(t)

	err := a.Simulate(context.Background(), SimulateOptions{
		ItemID: "42",
		Prices: []string{"$100.00", "90", "oops", "60"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], "new_all_time_low")
	assert.Contains(t, lines[2], "10.00")
	assert.Contains(t, lines[3], "skipped")
	assert.Contains(t, lines[4], "33.33")
	assert.Contains(t, lines[4], "significant_drop,new_all_time_low")
}

func TestSimulateNotifyRequiresChannel(t *testing.T) {
	a, _ := testApp(t)
	err := a.Simulate(context.Background(), SimulateOptions{Prices: []string{"1"}, Notify: true})
	assert.Error(t, err)
}

func TestNewNotifierChannels(t *testing.T) {
	a, _ := testApp(t)
	notifier, closer := a.newNotifier()
	closer()
	assert.Nil(t, notifier)

	a.Config.Alerting.Discord = config.DiscordConfig{Enabled: true, WebhookURL: "https://discord.invalid/hook"}
	a.Config.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"}
	notifier, closer = a.newNotifier()
	defer closer()

	multi, ok := notifier.(*alerting.MultiNotifier)
	require.True(t, ok)
	assert.Equal(t, []string{"discord", "telegram"}, multi.Channels())
}

func TestCommandsNeedDatabase(t *testing.T) {
	a, _ := testApp(t)
	ctx := context.Background()

	assert.True(t, errors.Is(a.Show(ctx, ShowOptions{Limit: 5}), ErrNoDatabase))
	assert.True(t, errors.Is(a.WatchList(ctx), ErrNoDatabase))
	assert.True(t, errors.Is(a.WatchAddByName(ctx, "elden ring"), ErrNoDatabase))
	assert.True(t, errors.Is(a.WatchRemoveByName(ctx, "elden ring"), ErrNoDatabase))
	assert.True(t, errors.Is(a.Migrate(ctx), ErrNoDatabase))
}

func TestExportHistoryWritesCSVAndPNG(t *testing.T) {
	a, _ := testApp(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	prices := []int64{50, 40, 45, 30}
	lowest := decimal.NewFromInt(1000)
	for i, p := range prices {
		price := decimal.NewFromInt(p)
		lowest = decimal.Min(lowest, price)
		_, err := store.AppendObservation(ctx, storage.PriceObservation{
			ItemID:      "42",
			Price:       price,
			LowestPrice: lowest,
			ObservedAt:  start.Add(time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "history.csv")
	pngPath := filepath.Join(dir, "out", "history.png")
	err := a.exportHistory(ctx, store, storage.Item{ID: "42", Name: "Thing"}, ExportOptions{
		ItemID:  "42",
		CSVPath: csvPath,
		PNGPath: pngPath,
	})
	require.NoError(t, err)

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, len(prices)+1)
	assert.Equal(t, []string{"observed_at", "item_id", "price", "lowest_price"}, rows[0])
	assert.Equal(t, "30", rows[4][2])
	assert.Equal(t, "30", rows[4][3])

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
