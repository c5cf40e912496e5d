package chart

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRenderHistoryPNG(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	points := []Point{
		{At: base, Price: decimal.NewFromInt(100), Lowest: decimal.NewFromInt(100)},
		{At: base.Add(24 * time.Hour), Price: decimal.NewFromInt(90), Lowest: decimal.NewFromInt(90)},
		{At: base.Add(48 * time.Hour), Price: decimal.NewFromInt(60), Lowest: decimal.NewFromInt(60)},
	}

	var buf bytes.Buffer
	if err := RenderHistory(&buf, "Price History for Test", points); err != nil {
		t.Fatalf("render should succeed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}

func TestRenderHistoryFlatSeries(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	points := []Point{
		{At: base, Price: decimal.NewFromInt(20), Lowest: decimal.NewFromInt(20)},
		{At: base.Add(time.Hour), Price: decimal.NewFromInt(20), Lowest: decimal.NewFromInt(20)},
	}

	var buf bytes.Buffer
	if err := RenderHistory(&buf, "flat", points); err != nil {
		t.Fatalf("flat series should render: %v", err)
	}
}

func TestRenderHistoryNeedsTwoPoints(t *testing.T) {
	var buf bytes.Buffer
	err := RenderHistory(&buf, "one", []Point{{At: time.Now(), Price: decimal.NewFromInt(1)}})
	if !errors.Is(err, ErrNotEnoughPoints) {
		t.Fatalf("expected ErrNotEnoughPoints, got %v", err)
	}
}

func TestDownsample(t *testing.T) {
	in := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	out := Downsample(in, 4)
	if len(out) != 4 || out[0] != 0 || out[3] != 9 {
		t.Fatalf("unexpected downsample result %v", out)
	}
	if got := Downsample(in, 0); len(got) != len(in) {
		t.Fatal("max 0 should keep everything")
	}
}
