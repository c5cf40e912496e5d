package chart

import (
	"errors"
	"io"
	"time"

	"github.com/shopspring/decimal"
	gochart "github.com/wcharczuk/go-chart/v2"
)

// ErrNotEnoughPoints is returned when a series cannot span a time axis.
var ErrNotEnoughPoints = errors.New("chart: at least two points with distinct timestamps are required")

// Point is one sample of a price history chart.
type Point struct {
	At     time.Time
	Price  decimal.Decimal
	Lowest decimal.Decimal
}

// RenderHistory draws price and lowest-to-date lines as a PNG.
func RenderHistory(w io.Writer, title string, points []Point) error {
	if len(points) < 2 || !points[len(points)-1].At.After(points[0].At) {
		return ErrNotEnoughPoints
	}

	x := make([]time.Time, len(points))
	prices := make([]float64, len(points))
	lowest := make([]float64, len(points))

	minY, maxY := points[0].Price.InexactFloat64(), points[0].Price.InexactFloat64()
	for i, p := range points {
		x[i] = p.At
		prices[i] = p.Price.InexactFloat64()
		lowest[i] = p.Lowest.InexactFloat64()
		for _, v := range []float64{prices[i], lowest[i]} {
			if v < minY {
				minY = v
			}
			if v > maxY {
				maxY = v
			}
		}
	}

	priceFormatter := func(v interface{}) string {
		return gochart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	yAxis := gochart.YAxis{
		Name:           "Price",
		ValueFormatter: priceFormatter,
	}
	// go-chart refuses a zero-height range
	if minY == maxY {
		pad := 1.0
		if maxY > 0 {
			pad = maxY * 0.1
		}
		yAxis.Range = &gochart.ContinuousRange{Min: minY - pad, Max: maxY + pad}
	}

	graph := gochart.Chart{
		Title:  title,
		Width:  1000,
		Height: 500,
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatterWithFormat("Jan 02 15:04"),
		},
		YAxis: yAxis,
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: prices,
			},
			gochart.TimeSeries{
				Name:    "Lowest",
				XValues: x,
				YValues: lowest,
				Style: gochart.Style{
					StrokeColor:     gochart.ColorRed,
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	return graph.Render(gochart.PNG, w)
}

// Downsample picks at most max evenly spaced points, keeping both ends.
func Downsample[T any](points []T, max int) []T {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(step*float64(i) + 0.5)
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}
