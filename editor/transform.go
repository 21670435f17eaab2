package editor

import (
	"fmt"
	"image"
	"image/color"
	"imagedesk/core"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Slider range for the zoom control.
const (
	MinScale = 0.1
	MaxScale = 3.0
)

// TransformState frames the base image inside the fixed-aspect canvas.
type TransformState struct {
	RotationDegrees int     `json:"rotationDegrees"`
	Scale           float64 `json:"scale"`
	OffsetX         float64 `json:"offsetX"`
	OffsetY         float64 `json:"offsetY"`
	TargetAspect    float64 `json:"targetAspect"`
}

func identityTransform(aspect float64) TransformState {
	return TransformState{Scale: 1, TargetAspect: aspect}
}

// Reset returns the framing to identity. The target aspect is kept.
func (t *TransformState) Reset() {
	*t = identityTransform(t.TargetAspect)
}

func (t *TransformState) Pan(dx, dy float64) {
	t.OffsetX += dx
	t.OffsetY += dy
}

// SetScale clamps v into the slider range.
func (t *TransformState) SetScale(v float64) {
	if math.IsNaN(v) {
		return
	}
	t.Scale = math.Min(MaxScale, math.Max(MinScale, v))
}

// Rotate adds delta, a multiple of 90, and normalises into [0, 360).
func (t *TransformState) Rotate(delta int) error {
	if delta%90 != 0 {
		return fmt.Errorf("%w: rotation must be a multiple of 90, got %d", core.ErrInvalid, delta)
	}
	t.RotationDegrees = ((t.RotationDegrees+delta)%360 + 360) % 360
	return nil
}

// renderBase draws src into dst framed by t. dst is cleared to bg first; k
// scales the framing for exports larger than the working canvas.
func renderBase(dst *image.RGBA, src image.Image, t TransformState, k float64, bg color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	if src == nil {
		return
	}
	db := dst.Bounds()
	sb := src.Bounds()

	s := t.Scale * k
	rad := float64(t.RotationDegrees) * math.Pi / 180
	// exact values keep quarter turns free of rounding noise
	sin, cos := quarterSinCos(t.RotationDegrees, rad)

	tx := float64(db.Min.X) + float64(db.Dx())/2 + t.OffsetX*k
	ty := float64(db.Min.Y) + float64(db.Dy())/2 + t.OffsetY*k
	cx := float64(sb.Min.X) + float64(sb.Dx())/2
	cy := float64(sb.Min.Y) + float64(sb.Dy())/2

	a, b := s*cos, -s*sin
	d, e := s*sin, s*cos
	m := f64.Aff3{
		a, b, tx - (a*cx + b*cy),
		d, e, ty - (d*cx + e*cy),
	}
	draw.BiLinear.Transform(dst, m, src, sb, draw.Over, nil)
}

func quarterSinCos(deg int, rad float64) (float64, float64) {
	switch deg {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	return math.Sin(rad), math.Cos(rad)
}
