package editor

import (
	"image"
	"image/color"
	"regexp"
	"strconv"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// DefaultFont is applied to text items created without an explicit font.
const DefaultFont = "20px sans-serif"

const (
	minFontSize = 4
	maxFontSize = 400
)

var fontSizePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)px`)

// opentype faces are not safe for concurrent use, so every measurement and
// draw goes through fontMu.
var (
	fontMu    sync.Mutex
	regular   *opentype.Font
	fontErr   error
	fontOnce  sync.Once
	faceCache = map[float64]font.Face{}
)

// fontSize extracts the pixel size of a CSS-like font string such as
// "bold 24px sans-serif".
func fontSize(desc string) float64 {
	m := fontSizePattern.FindStringSubmatch(desc)
	if m == nil {
		return 20
	}
	size, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 20
	}
	if size < minFontSize {
		return minFontSize
	}
	if size > maxFontSize {
		return maxFontSize
	}
	return size
}

func faceLocked(size float64) font.Face {
	if f, ok := faceCache[size]; ok {
		return f
	}
	fontOnce.Do(func() {
		regular, fontErr = opentype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(regular, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return basicfont.Face7x13
	}
	faceCache[size] = face
	return face
}

// measureText returns the advance width of text and the font height.
func measureText(desc, text string) (float64, float64) {
	size := fontSize(desc)
	fontMu.Lock()
	defer fontMu.Unlock()
	d := &font.Drawer{Face: faceLocked(size)}
	adv := d.MeasureString(text)
	return float64(adv) / 64, size
}

// drawText fills text with its baseline at (x, y), all scaled by k.
func drawText(dst *image.RGBA, desc, text string, x, y, k float64, c color.NRGBA) {
	if text == "" {
		return
	}
	size := fontSize(desc) * k
	fontMu.Lock()
	defer fontMu.Unlock()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: faceLocked(size),
		Dot:  fixed.Point26_6{X: fixed.Int26_6(x * k * 64), Y: fixed.Int26_6(y * k * 64)},
	}
	d.DrawString(text)
}
