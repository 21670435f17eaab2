package files

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"imagedesk/core"

	_ "image/gif"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxPreviewWidth bounds the width a client may ask a preview for.
const MaxPreviewWidth = 4096

// Rendition is an encoded, possibly downscaled copy of a stored image.
type Rendition struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Preview decodes a stored image and downsizes it to width, keeping the
// aspect ratio. A width of zero or wider than the source returns the source size.
func (s *Service) Preview(ctx context.Context, id string, width int) (*Rendition, error) {
	img, data, err := s.Original(ctx, id)
	if err != nil {
		return nil, err
	}
	if !core.IsImageContentType(img.ContentType) {
		return nil, ErrNotAnImage
	}
	if width > MaxPreviewWidth {
		width = MaxPreviewWidth
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	out := Resize(src, width)

	var buf bytes.Buffer
	contentType := "image/png"
	if format == "jpeg" {
		contentType = "image/jpeg"
		err = jpeg.Encode(&buf, out, &jpeg.Options{Quality: 85})
	} else {
		err = png.Encode(&buf, out)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	b := out.Bounds()
	return &Rendition{Data: buf.Bytes(), ContentType: contentType, Width: b.Dx(), Height: b.Dy()}, nil
}

// Resize scales src down to width pixels wide. It never upscales.
func Resize(src image.Image, width int) image.Image {
	sb := src.Bounds()
	if width <= 0 || width >= sb.Dx() {
		return src
	}
	height := int(float64(sb.Dy())*float64(width)/float64(sb.Dx()) + 0.5)
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}
