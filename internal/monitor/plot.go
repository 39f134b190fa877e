// Package monitor renders debug views of the acquisition window and the
// labeled datasets, and streams live readings over a websocket.
package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/stress.report/internal/acquisition"
	"github.com/banshee-data/stress.report/internal/sensor"
)

// ErrEmptySnapshot is returned when a snapshot has no channel data to draw.
var ErrEmptySnapshot = errors.New("monitor: snapshot has no samples")

// SnapshotPNG draws one panel per channel of snap, stacked vertically, with
// time in seconds from the window start on the x axis.
func SnapshotPNG(w io.Writer, snap *acquisition.Snapshot) error {
	var chs []sensor.Channel
	for ch, vals := range snap.Samples {
		if len(vals) > 0 {
			chs = append(chs, ch)
		}
	}
	if len(chs) == 0 {
		return ErrEmptySnapshot
	}
	slices.Sort(chs)
	colors := generateColors(len(chs))

	plots := make([][]*plot.Plot, len(chs))
	for i, ch := range chs {
		vals := snap.Samples[ch]
		step := snap.Length() / float64(len(vals))
		pts := make(plotter.XYs, len(vals))
		for j, v := range vals {
			pts[j] = plotter.XY{X: float64(j) * step, Y: v}
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s (%d samples, %.1f Hz)", ch, len(vals), snap.Rate(ch))
		p.X.Label.Text = "Seconds"
		p.Y.Label.Text = ch.String()
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", ch, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line, plotter.NewGrid())
		plots[i] = []*plot.Plot{p}
	}

	img := vgimg.New(10*vg.Inch, vg.Length(len(chs))*3*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(chs),
		Cols:      1,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadY:      vg.Points(8),
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}
	_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
