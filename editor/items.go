package editor

import (
	"encoding/json"
	"math"
)

// Point is a position in canvas pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned box with non-negative width and height.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func boxFromCorners(x0, y0, x1, y1 float64) Box {
	return Box{X: math.Min(x0, x1), Y: math.Min(y0, y1), W: math.Abs(x1 - x0), H: math.Abs(y1 - y0)}
}

// Contains reports whether p lies inside b, edges included.
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.W && p.Y >= b.Y && p.Y <= b.Y+b.H
}

// ContainsBox reports whether o lies entirely inside b.
func (b Box) ContainsBox(o Box) bool {
	return o.X >= b.X && o.Y >= b.Y && o.X+o.W <= b.X+b.W && o.Y+o.H <= b.Y+b.H
}

func (b Box) Inset(d float64) Box {
	return Box{X: b.X + d, Y: b.Y + d, W: b.W - 2*d, H: b.H - 2*d}
}

type Kind string

const (
	KindRect     Kind = "rect"
	KindArrow    Kind = "arrow"
	KindCircle   Kind = "circle"
	KindFreehand Kind = "freehand"
	KindText     Kind = "text"
)

// Item is one annotation on the overlay.
type Item interface {
	ItemID() string
	Kind() Kind
	Bounds() Box
	Translate(dx, dy float64)
	Clone() Item
}

type Rect struct {
	ID          string  `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
}

func (r *Rect) ItemID() string { return r.ID }
func (r *Rect) Kind() Kind     { return KindRect }

// Bounds normalises negative extents left by dragging up or left.
func (r *Rect) Bounds() Box {
	return boxFromCorners(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

func (r *Rect) Translate(dx, dy float64) {
	r.X += dx
	r.Y += dy
}

func (r *Rect) Clone() Item {
	c := *r
	return &c
}

func (r *Rect) MarshalJSON() ([]byte, error) {
	type alias Rect
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindRect, (*alias)(r)})
}

type Arrow struct {
	ID          string  `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	X2          float64 `json:"x2"`
	Y2          float64 `json:"y2"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
}

func (a *Arrow) ItemID() string { return a.ID }
func (a *Arrow) Kind() Kind     { return KindArrow }

func (a *Arrow) Bounds() Box {
	return boxFromCorners(a.X, a.Y, a.X2, a.Y2)
}

func (a *Arrow) Translate(dx, dy float64) {
	a.X += dx
	a.Y += dy
	a.X2 += dx
	a.Y2 += dy
}

func (a *Arrow) Clone() Item {
	c := *a
	return &c
}

func (a *Arrow) MarshalJSON() ([]byte, error) {
	type alias Arrow
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindArrow, (*alias)(a)})
}

type Circle struct {
	ID          string  `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Radius      float64 `json:"radius"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
}

func (c *Circle) ItemID() string { return c.ID }
func (c *Circle) Kind() Kind     { return KindCircle }

func (c *Circle) Bounds() Box {
	return Box{X: c.X - c.Radius, Y: c.Y - c.Radius, W: 2 * c.Radius, H: 2 * c.Radius}
}

func (c *Circle) Translate(dx, dy float64) {
	c.X += dx
	c.Y += dy
}

func (c *Circle) Clone() Item {
	cc := *c
	return &cc
}

func (c *Circle) MarshalJSON() ([]byte, error) {
	type alias Circle
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindCircle, (*alias)(c)})
}

type Freehand struct {
	ID          string  `json:"id"`
	Points      []Point `json:"points"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
}

func (f *Freehand) ItemID() string { return f.ID }
func (f *Freehand) Kind() Kind     { return KindFreehand }

func (f *Freehand) Bounds() Box {
	if len(f.Points) == 0 {
		return Box{}
	}
	minX, minY := f.Points[0].X, f.Points[0].Y
	maxX, maxY := minX, minY
	for _, p := range f.Points[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return Box{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

func (f *Freehand) Translate(dx, dy float64) {
	for i := range f.Points {
		f.Points[i].X += dx
		f.Points[i].Y += dy
	}
}

func (f *Freehand) Clone() Item {
	c := *f
	c.Points = append([]Point(nil), f.Points...)
	return &c
}

func (f *Freehand) MarshalJSON() ([]byte, error) {
	type alias Freehand
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindFreehand, (*alias)(f)})
}

// Text is drawn with its baseline at (X, Y).
type Text struct {
	ID          string  `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Text        string  `json:"text"`
	Font        string  `json:"font"`
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"strokeWidth"`
}

func (t *Text) ItemID() string { return t.ID }
func (t *Text) Kind() Kind     { return KindText }

func (t *Text) Bounds() Box {
	w, h := measureText(t.Font, t.Text)
	return Box{X: t.X, Y: t.Y - h, W: w, H: h}
}

func (t *Text) Translate(dx, dy float64) {
	t.X += dx
	t.Y += dy
}

func (t *Text) Clone() Item {
	c := *t
	return &c
}

func (t *Text) MarshalJSON() ([]byte, error) {
	type alias Text
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindText, (*alias)(t)})
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
