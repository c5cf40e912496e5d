package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"wishlist-pricewatch/internal/chart"
	"wishlist-pricewatch/internal/pricing"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func crashAlert() Alert {
	return Alert{
		ItemID:         "1245620",
		ItemName:       "Elden Ring",
		Price:          decimal.NewFromInt(60),
		PreviousPrice:  decimal.NewNullDecimal(decimal.NewFromInt(90)),
		LowestPrice:    decimal.NewFromInt(60),
		PreviousLowest: decimal.NewNullDecimal(decimal.NewFromInt(90)),
		DropPct:        decimal.NewNullDecimal(decimal.RequireFromString("33.3333")),
		ThresholdPct:   decimal.NewFromInt(20),
		Reasons:        pricing.Reasons(0).With(pricing.SignificantDrop).With(pricing.NewAllTimeLow),
		ObservedAt:     time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), crashAlert()); err != nil {
		t.Fatalf("telegram notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	text := received["text"]
	for _, want := range []string{"Elden Ring is now 60.00", "Dropped 33.33%", "previous lowest 90.00", "store.steampowered.com/app/1245620"} {
		if !strings.Contains(text, want) {
			t.Fatalf("message %q should contain %q", text, want)
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), crashAlert()); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

func TestDiscordNotifierJSONWithoutHistory(t *testing.T) {
	var payload discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected json body, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(DiscordOptions{WebhookURL: srv.URL, AttachChart: true}, testLogger())
	if err := notifier.Notify(context.Background(), crashAlert()); err != nil {
		t.Fatalf("discord notify should succeed: %v", err)
	}

	if len(payload.Embeds) != 1 {
		t.Fatalf("expected a single embed, got %d", len(payload.Embeds))
	}
	embed := payload.Embeds[0]
	if !strings.Contains(embed.Description, "**Elden Ring** is now **60.00**") {
		t.Fatalf("unexpected description %q", embed.Description)
	}
	if embed.Image != nil {
		t.Fatal("no image expected without history")
	}
}

func TestDiscordNotifierAttachesChart(t *testing.T) {
	var gotPayload, gotFile bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Fatalf("expected multipart body, got %q", r.Header.Get("Content-Type"))
		}
		reader := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := reader.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("read part: %v", err)
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "payload_json":
				gotPayload = strings.Contains(string(data), "attachment://price_history.png")
			case "files[0]":
				gotFile = strings.HasPrefix(string(data), "\x89PNG")
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alert := crashAlert()
	base := alert.ObservedAt.Add(-48 * time.Hour)
	alert.History = func(ctx context.Context) ([]chart.Point, error) {
		return []chart.Point{
			{At: base, Price: decimal.NewFromInt(100), Lowest: decimal.NewFromInt(100)},
			{At: base.Add(24 * time.Hour), Price: decimal.NewFromInt(90), Lowest: decimal.NewFromInt(90)},
			{At: alert.ObservedAt, Price: decimal.NewFromInt(60), Lowest: decimal.NewFromInt(60)},
		}, nil
	}

	notifier := NewDiscordNotifier(DiscordOptions{WebhookURL: srv.URL, AttachChart: true}, testLogger())
	if err := notifier.Notify(context.Background(), alert); err != nil {
		t.Fatalf("discord notify should succeed: %v", err)
	}
	if !gotPayload || !gotFile {
		t.Fatalf("payload referencing attachment=%v, png file=%v", gotPayload, gotFile)
	}
}

func TestDiscordNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	notifier := NewDiscordNotifier(DiscordOptions{WebhookURL: srv.URL}, testLogger())
	err := notifier.Notify(context.Background(), crashAlert())
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierPublishesEvent(t *testing.T) {
	writer := &fakeWriter{}
	notifier := newKafkaNotifier(writer, "price-alerts", testLogger())

	if err := notifier.Notify(context.Background(), crashAlert()); err != nil {
		t.Fatalf("kafka notify should succeed: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}

	msg := writer.messages[0]
	if string(msg.Key) != "1245620" {
		t.Fatalf("message should be keyed by item id, got %q", msg.Key)
	}
	var event AlertEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.EventType != "price_alert" || event.Price != "60" || len(event.Reasons) != 2 {
		t.Fatalf("unexpected event %#v", event)
	}
	if event.PreviousPrice == nil || *event.PreviousPrice != "90" {
		t.Fatalf("previous price missing: %#v", event)
	}
}

func TestKafkaNotifierFirstObservationOmitsPrevious(t *testing.T) {
	event := newAlertEvent(Alert{
		ItemID:      "570",
		Price:       decimal.RequireFromString("29.99"),
		LowestPrice: decimal.RequireFromString("29.99"),
		Reasons:     pricing.Reasons(0).With(pricing.NewAllTimeLow),
	})
	if event.PreviousPrice != nil || event.PreviousLowest != nil || event.DropPct != nil {
		t.Fatalf("first observation should not carry previous values: %#v", event)
	}
	if len(event.Reasons) != 1 || event.Reasons[0] != "new_all_time_low" {
		t.Fatalf("unexpected reasons %v", event.Reasons)
	}
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(ctx context.Context, alert Alert) error {
	c.calls++
	return c.err
}

func TestMultiNotifierDeliversToAllChannels(t *testing.T) {
	ok := &countingNotifier{}
	broken := &countingNotifier{err: errors.New("boom")}
	multi := NewMultiNotifier(
		Channel{Name: "discord", Notifier: broken},
		Channel{Name: "none", Notifier: nil},
		Channel{Name: "telegram", Notifier: ok},
	)

	if got := multi.Channels(); len(got) != 2 || got[0] != "discord" || got[1] != "telegram" {
		t.Fatalf("unexpected channels %v", got)
	}

	err := multi.Notify(context.Background(), crashAlert())
	if err == nil || !strings.Contains(err.Error(), "discord: boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.calls != 1 || broken.calls != 1 {
		t.Fatalf("each channel should be called exactly once: ok=%d broken=%d", ok.calls, broken.calls)
	}
}
