// Package chart renders an equity curve as a PNG line chart.
package chart

import (
	"errors"
	"fmt"

	"github.com/vicanso/go-charts/v2"

	"github.com/rustyeddy/equity/curve"
)

var ErrTooFewPoints = errors.New("chart: need at least two points")

// RenderPNG draws balance against date.
func RenderPNG(c curve.Curve, title string) ([]byte, error) {
	if c.Len() < 2 {
		return nil, ErrTooFewPoints
	}

	x := make([]string, 0, c.Len())
	y := make([]float64, 0, c.Len())
	yMin, yMax := c.Points[0].Balance, c.Points[0].Balance
	for _, p := range c.Points {
		x = append(x, p.Date.Format("Jan 02"))
		y = append(y, p.Balance)
		yMin = min(yMin, p.Balance)
		yMax = max(yMax, p.Balance)
	}

	pad := (yMax - yMin) * 0.05
	if pad < yMax*0.002 {
		pad = yMax * 0.002
	}
	yMin -= pad
	if yMin < 0 {
		yMin = 0
	}
	yMax += pad

	painter, err := charts.LineRender([][]float64{y},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: x, BoundaryGap: charts.FalseFlag()}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return painter.Bytes()
}
