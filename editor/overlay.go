package editor

import (
	"image"
	"image/color"
	"math"
)

var (
	defaultInk     = color.NRGBA{R: 255, A: 255}
	paper          = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	selectionColor = color.NRGBA{R: 0, G: 120, B: 255, A: 255}
	marqueeColor   = color.NRGBA{R: 0, G: 120, B: 255, A: 220}
)

const selectionPad = 4

// renderOverlay clears dst and draws items in order, outlining the selected
// ones, then the marquee if any. Coordinates are multiplied by k.
func renderOverlay(dst *image.RGBA, items []Item, selected map[string]bool, marquee *Marquee, k float64) {
	for i := range dst.Pix {
		dst.Pix[i] = 0
	}
	for _, it := range items {
		drawItem(dst, it, k)
		if selected[it.ItemID()] {
			dashedBox(dst, scaleBox(it.Bounds().Inset(-selectionPad), k), selectionColor, 4)
		}
	}
	if marquee != nil {
		dashedBox(dst, scaleBox(marquee.Box(), k), marqueeColor, 3)
	}
}

func drawItem(dst *image.RGBA, it Item, k float64) {
	switch v := it.(type) {
	case *Rect:
		strokeBox(dst, scaleBox(v.Bounds(), k), colorOr(v.Color, defaultInk), v.StrokeWidth*k)
	case *Arrow:
		drawArrow(dst, v, k)
	case *Circle:
		strokeRing(dst, v.X*k, v.Y*k, v.Radius*k, colorOr(v.Color, defaultInk), v.StrokeWidth*k)
	case *Freehand:
		c := colorOr(v.Color, defaultInk)
		if len(v.Points) == 1 {
			fillDisc(dst, v.Points[0].X*k, v.Points[0].Y*k, halfWidth(v.StrokeWidth*k), c)
		}
		for i := 1; i < len(v.Points); i++ {
			p0, p1 := v.Points[i-1], v.Points[i]
			strokeSegment(dst, p0.X*k, p0.Y*k, p1.X*k, p1.Y*k, c, v.StrokeWidth*k)
		}
	case *Text:
		drawText(dst, v.Font, v.Text, v.X, v.Y, k, colorOr(v.Color, defaultInk))
	}
}

// drawArrow draws the shaft and a filled head whose length grows with the
// stroke width.
func drawArrow(dst *image.RGBA, a *Arrow, k float64) {
	c := colorOr(a.Color, defaultInk)
	x1, y1, x2, y2 := a.X*k, a.Y*k, a.X2*k, a.Y2*k
	width := a.StrokeWidth * k

	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length < 1 {
		strokeSegment(dst, x1, y1, x2, y2, c, width)
		return
	}
	headLen := math.Max(a.StrokeWidth*5, 12) * k
	if headLen > length {
		headLen = length
	}
	headW := headLen * 0.5
	ux, uy := dx/length, dy/length
	baseX, baseY := x2-ux*headLen, y2-uy*headLen
	nx, ny := -uy, ux

	strokeSegment(dst, x1, y1, baseX+ux*headLen*0.3, baseY+uy*headLen*0.3, c, width)
	fillTriangle(dst,
		Point{X: x2, Y: y2},
		Point{X: baseX + nx*headW, Y: baseY + ny*headW},
		Point{X: baseX - nx*headW, Y: baseY - ny*headW},
		c)
}

func scaleBox(b Box, k float64) Box {
	return Box{X: b.X * k, Y: b.Y * k, W: b.W * k, H: b.H * k}
}
