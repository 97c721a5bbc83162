package exports

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"panelbench/pkg/simdata"
)

const (
	plotWidth  = 640
	plotHeight = 480
	plotMargin = 40
)

// renderScatterPNG draws predictor against response for every row. Rows
// missing either column are skipped; an empty plot is still a valid artifact.
func renderScatterPNG(result simdata.RunResult) ([]byte, error) {
	points := make([][2]float64, 0, len(result.Rows))
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, row := range result.Rows {
		x, okX := numericValue(row["predictor"])
		y, okY := numericValue(row["response"])
		if !okX || !okY {
			continue
		}
		points = append(points, [2]float64{x, y})
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	if len(points) == 0 {
		minX, maxX, minY, maxY = 0, 1, 0, 1
	}
	if maxX == minX {
		maxX = minX + 1
	}
	if maxY == minY {
		maxY = minY + 1
	}

	img := image.NewRGBA(image.Rect(0, 0, plotWidth, plotHeight))
	background := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	axis := color.RGBA{R: 60, G: 60, B: 60, A: 255}
	point := color.RGBA{R: 31, G: 119, B: 180, A: 255}

	for y := 0; y < plotHeight; y++ {
		for x := 0; x < plotWidth; x++ {
			img.SetRGBA(x, y, background)
		}
	}
	for x := plotMargin; x < plotWidth-plotMargin; x++ {
		img.SetRGBA(x, plotHeight-plotMargin, axis)
	}
	for y := plotMargin; y < plotHeight-plotMargin; y++ {
		img.SetRGBA(plotMargin, y, axis)
	}

	spanX := maxX - minX
	spanY := maxY - minY
	innerW := float64(plotWidth - 2*plotMargin)
	innerH := float64(plotHeight - 2*plotMargin)
	for _, p := range points {
		px := plotMargin + int(math.Round((p[0]-minX)/spanX*innerW))
		py := plotHeight - plotMargin - int(math.Round((p[1]-minY)/spanY*innerH))
		drawDot(img, px, py, point)
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawDot(img *image.RGBA, cx, cy int, c color.RGBA) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := cx+dx, cy+dy
			if x < 0 || y < 0 || x >= plotWidth || y >= plotHeight {
				continue
			}
			img.SetRGBA(x, y, c)
		}
	}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
