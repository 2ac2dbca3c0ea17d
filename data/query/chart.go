package query

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// renderChartImage draws a minimal bar/line chart to a PNG buffer at 8x4.5in
// (1200x675px at 150dpi, matching spec.md §4.10 step 8's 8x4.5"/150dpi).
// No charting library exists anywhere in the dependency pack, so this draws
// directly with the standard library's image/png.
func renderChartImage(kind chartKind, cols []string, rows [][]any) ([]byte, error) {
	const (
		width   = 1200
		height  = 675
		marginL = 60
		marginR = 30
		marginT = 30
		marginB = 60
	)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(img, image.Rect(0, 0, width, height), color.White)

	plotW := width - marginL - marginR
	plotH := height - marginT - marginB
	axisColor := color.RGBA{60, 60, 60, 255}
	barColor := color.RGBA{70, 130, 180, 255}

	drawLine(img, marginL, height-marginB, width-marginR, height-marginB, axisColor)
	drawLine(img, marginL, marginT, marginL, height-marginB, axisColor)

	values, err := chartValues(kind, cols, rows)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return encodePNG(img)
	}

	maxV, minV := values[0], values[0]
	for _, v := range values {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	if minV > 0 {
		minV = 0
	}
	span := maxV - minV
	if span == 0 {
		span = 1
	}

	switch kind {
	case chartLine:
		drawPolyline(img, values, marginL, marginT, plotW, plotH, minV, span, axisColor)
	default:
		drawBars(img, values, marginL, marginT, plotW, plotH, minV, span, barColor)
	}

	return encodePNG(img)
}

// chartValues extracts the numeric series to plot for kind.
func chartValues(kind chartKind, cols []string, rows [][]any) ([]float64, error) {
	switch kind {
	case chartSingleValueBar:
		if len(rows) == 0 || len(rows[0]) == 0 {
			return nil, fmt.Errorf("chart: no data to render")
		}
		return []float64{toFloat(rows[0][0])}, nil
	case chartSingleColBar:
		values := make([]float64, len(rows))
		for i, row := range rows {
			if len(row) > 0 {
				values[i] = toFloat(row[0])
			}
		}
		return values, nil
	default:
		idx := firstNumericColumnIndex(rows)
		if idx < 0 {
			idx = len(cols) - 1
		}
		values := make([]float64, len(rows))
		for i, row := range rows {
			if idx < len(row) {
				values[i] = toFloat(row[idx])
			}
		}
		return values, nil
	}
}

func drawBars(img *image.RGBA, values []float64, left, top, plotW, plotH int, minV, span float64, c color.Color) {
	n := len(values)
	if n == 0 {
		return
	}
	gap := 4
	barW := (plotW - gap*(n-1)) / n
	if barW < 1 {
		barW = 1
	}
	baseY := top + plotH
	for i, v := range values {
		barH := int(float64(plotH) * (v - minV) / span)
		x0 := left + i*(barW+gap)
		y0 := baseY - barH
		fillRect(img, image.Rect(x0, y0, x0+barW, baseY), c)
	}
}

func drawPolyline(img *image.RGBA, values []float64, left, top, plotW, plotH int, minV, span float64, c color.Color) {
	n := len(values)
	if n < 2 {
		return
	}
	stepX := float64(plotW) / float64(n-1)
	prevX, prevY := left, top+plotH-int(float64(plotH)*(values[0]-minV)/span)
	for i := 1; i < n; i++ {
		x := left + int(float64(i)*stepX)
		y := top + plotH - int(float64(plotH)*(values[i]-minV)/span)
		drawLine(img, prevX, prevY, x, y, c)
		prevX, prevY = x, y
	}
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

// drawLine draws a simple Bresenham line.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func encodePNG(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
