package editor

import (
	"image"
	"image/color"
	"math"
)

// Anti-aliased primitives over *image.RGBA. Colours are straight alpha;
// blendPixel composites them onto the premultiplied destination.

func blendPixel(img *image.RGBA, x, y int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y || c.A == 0 {
		return
	}
	off := img.PixOffset(x, y)
	if c.A == 255 {
		img.Pix[off+0] = c.R
		img.Pix[off+1] = c.G
		img.Pix[off+2] = c.B
		img.Pix[off+3] = 255
		return
	}
	srcA := uint32(c.A)
	invA := 255 - srcA
	img.Pix[off+0] = uint8((uint32(c.R)*srcA + uint32(img.Pix[off+0])*invA) / 255)
	img.Pix[off+1] = uint8((uint32(c.G)*srcA + uint32(img.Pix[off+1])*invA) / 255)
	img.Pix[off+2] = uint8((uint32(c.B)*srcA + uint32(img.Pix[off+2])*invA) / 255)
	img.Pix[off+3] = uint8(srcA + uint32(img.Pix[off+3])*invA/255)
}

// coverPixel paints a pixel whose centre is dist away from a shape edge of
// half width halfW, fading over the last pixel.
func coverPixel(img *image.RGBA, x, y int, c color.NRGBA, dist, halfW float64) {
	if dist > halfW+0.5 {
		return
	}
	if dist <= halfW-0.5 {
		blendPixel(img, x, y, c)
		return
	}
	frac := halfW + 0.5 - dist
	blendPixel(img, x, y, color.NRGBA{c.R, c.G, c.B, uint8(float64(c.A) * frac)})
}

func halfWidth(width float64) float64 {
	if hw := width / 2; hw >= 0.75 {
		return hw
	}
	return 0.75
}

// strokeSegment draws a line of the given width with round caps.
func strokeSegment(img *image.RGBA, x1, y1, x2, y2 float64, c color.NRGBA, width float64) {
	halfW := halfWidth(width)
	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length < 0.5 {
		fillDisc(img, x1, y1, halfW, c)
		return
	}
	ux, uy := dx/length, dy/length
	nx, ny := -uy, ux

	margin := halfW + 2
	minX := int(math.Floor(math.Min(x1, x2) - margin))
	maxX := int(math.Ceil(math.Max(x1, x2) + margin))
	minY := int(math.Floor(math.Min(y1, y2) - margin))
	maxY := int(math.Ceil(math.Max(y1, y2) + margin))
	minX, minY, maxX, maxY = clipSpan(img, minX, minY, maxX, maxY)

	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			vx := float64(px) + 0.5 - x1
			vy := float64(py) + 0.5 - y1
			along := vx*ux + vy*uy
			var dist float64
			switch {
			case along <= 0:
				dist = math.Hypot(vx, vy)
			case along >= length:
				dist = math.Hypot(float64(px)+0.5-x2, float64(py)+0.5-y2)
			default:
				dist = math.Abs(vx*nx + vy*ny)
			}
			coverPixel(img, px, py, c, dist, halfW)
		}
	}
}

func fillDisc(img *image.RGBA, cx, cy, r float64, c color.NRGBA) {
	minX, minY, maxX, maxY := clipSpan(img,
		int(math.Floor(cx-r-2)), int(math.Floor(cy-r-2)),
		int(math.Ceil(cx+r+2)), int(math.Ceil(cy+r+2)))
	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			dist := math.Hypot(float64(px)+0.5-cx, float64(py)+0.5-cy)
			coverPixel(img, px, py, c, dist, r)
		}
	}
}

// strokeRing draws the outline of a circle centred at (cx, cy).
func strokeRing(img *image.RGBA, cx, cy, r float64, c color.NRGBA, width float64) {
	halfW := halfWidth(width)
	outer := r + halfW + 1.5
	inner := r - halfW - 1.5
	minX, minY, maxX, maxY := clipSpan(img,
		int(math.Floor(cx-outer)), int(math.Floor(cy-outer)),
		int(math.Ceil(cx+outer)), int(math.Ceil(cy+outer)))
	for py := minY; py <= maxY; py++ {
		for px := minX; px <= maxX; px++ {
			d := math.Hypot(float64(px)+0.5-cx, float64(py)+0.5-cy)
			if d > outer || (inner > 0 && d < inner) {
				continue
			}
			coverPixel(img, px, py, c, math.Abs(d-r), halfW)
		}
	}
}

// fillTriangle scan-converts a triangle, one span per pixel row.
func fillTriangle(img *image.RGBA, p1, p2, p3 Point, c color.NRGBA) {
	minY := int(math.Floor(math.Min(p1.Y, math.Min(p2.Y, p3.Y))))
	maxY := int(math.Ceil(math.Max(p1.Y, math.Max(p2.Y, p3.Y))))
	b := img.Bounds()
	if minY < b.Min.Y {
		minY = b.Min.Y
	}
	if maxY >= b.Max.Y {
		maxY = b.Max.Y - 1
	}
	for y := minY; y <= maxY; y++ {
		fy := float64(y) + 0.5
		xs := make([]float64, 0, 3)
		xs = appendEdgeX(xs, fy, p1, p2)
		xs = appendEdgeX(xs, fy, p2, p3)
		xs = appendEdgeX(xs, fy, p3, p1)
		if len(xs) < 2 {
			continue
		}
		lo, hi := xs[0], xs[0]
		for _, x := range xs[1:] {
			lo, hi = math.Min(lo, x), math.Max(hi, x)
		}
		for x := int(math.Round(lo)); x <= int(math.Round(hi)); x++ {
			blendPixel(img, x, y, c)
		}
	}
}

func appendEdgeX(xs []float64, y float64, a, b Point) []float64 {
	if a.Y > b.Y {
		a, b = b, a
	}
	if y < a.Y || y > b.Y || a.Y == b.Y {
		return xs
	}
	t := (y - a.Y) / (b.Y - a.Y)
	return append(xs, a.X+t*(b.X-a.X))
}

func strokeBox(img *image.RGBA, r Box, c color.NRGBA, width float64) {
	x0, y0, x1, y1 := r.X, r.Y, r.X+r.W, r.Y+r.H
	strokeSegment(img, x0, y0, x1, y0, c, width)
	strokeSegment(img, x1, y0, x1, y1, c, width)
	strokeSegment(img, x1, y1, x0, y1, c, width)
	strokeSegment(img, x0, y1, x0, y0, c, width)
}

// dashedBox outlines r with 1px dashes of the given on/off length.
func dashedBox(img *image.RGBA, r Box, c color.NRGBA, dash int) {
	x0, y0 := int(math.Round(r.X)), int(math.Round(r.Y))
	x1, y1 := int(math.Round(r.X+r.W)), int(math.Round(r.Y+r.H))
	if dash < 1 {
		dash = 4
	}
	n := 0
	plot := func(x, y int) {
		if (n/dash)%2 == 0 {
			blendPixel(img, x, y, c)
		}
		n++
	}
	for x := x0; x < x1; x++ {
		plot(x, y0)
	}
	for y := y0; y < y1; y++ {
		plot(x1, y)
	}
	for x := x1; x > x0; x-- {
		plot(x, y1)
	}
	for y := y1; y > y0; y-- {
		plot(x0, y)
	}
}

func clipSpan(img *image.RGBA, minX, minY, maxX, maxY int) (int, int, int, int) {
	b := img.Bounds()
	if minX < b.Min.X {
		minX = b.Min.X
	}
	if minY < b.Min.Y {
		minY = b.Min.Y
	}
	if maxX >= b.Max.X {
		maxX = b.Max.X - 1
	}
	if maxY >= b.Max.Y {
		maxY = b.Max.Y - 1
	}
	return minX, minY, maxX, maxY
}

// newLayer returns a transparent surface of w×h pixels.
func newLayer(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}
