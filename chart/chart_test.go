package chart

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/equity/curve"
)

func TestRenderPNG(t *testing.T) {
	t.Parallel()

	var c curve.Curve
	for i, bal := range []float64{10000, 10100, 10050, 10400} {
		c.Points = append(c.Points, curve.Point{
			Date:    time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC),
			Balance: bal,
		})
	}

	img, err := RenderPNG(c, "Equity")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte("\x89PNG")))
}

func TestRenderPNGTooFewPoints(t *testing.T) {
	t.Parallel()

	_, err := RenderPNG(curve.Curve{Points: []curve.Point{{Balance: 1}}}, "x")
	assert.ErrorIs(t, err, ErrTooFewPoints)
}
