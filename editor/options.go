package editor

import (
	"fmt"
	"imagedesk/core"
	"strings"
)

// Options configure one editor call site.
type Options struct {
	// ExportScale multiplies the target size of the exported raster.
	ExportScale int `json:"exportScale,omitempty" yaml:"export_scale"`
	// Format is "png" or "jpeg".
	Format      string `json:"format,omitempty" yaml:"format"`
	JPEGQuality int    `json:"jpegQuality,omitempty" yaml:"jpeg_quality"`
	// PreviewWidth is the pixel width requested from the file service. Zero
	// asks for the export width.
	PreviewWidth int    `json:"previewWidth,omitempty" yaml:"preview_width"`
	Background   string `json:"background,omitempty" yaml:"background"`
	// UploadOnApply persists the export through the upload protocol.
	UploadOnApply bool `json:"uploadOnApply,omitempty" yaml:"upload_on_apply"`
}

func DefaultOptions() Options {
	return Options{ExportScale: 1, Format: "png", JPEGQuality: 90, Background: "#ffffff"}
}

// Merge fills the zero fields of o from defaults.
func (o Options) Merge(defaults Options) Options {
	if o.ExportScale == 0 {
		o.ExportScale = defaults.ExportScale
	}
	if o.Format == "" {
		o.Format = defaults.Format
	}
	if o.JPEGQuality == 0 {
		o.JPEGQuality = defaults.JPEGQuality
	}
	if o.PreviewWidth == 0 {
		o.PreviewWidth = defaults.PreviewWidth
	}
	if o.Background == "" {
		o.Background = defaults.Background
	}
	o.UploadOnApply = o.UploadOnApply || defaults.UploadOnApply
	return o
}

func (o Options) Validate() error {
	if o.ExportScale < 1 || o.ExportScale > 8 {
		return fmt.Errorf("%w: export scale must be between 1 and 8, got %d", core.ErrInvalid, o.ExportScale)
	}
	if _, err := normalizeFormat(o.Format); err != nil {
		return err
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg quality must be between 1 and 100, got %d", core.ErrInvalid, o.JPEGQuality)
	}
	if _, err := ParseColor(o.Background); err != nil {
		return fmt.Errorf("background: %w", err)
	}
	return nil
}

func normalizeFormat(f string) (string, error) {
	switch strings.ToLower(f) {
	case "png":
		return "png", nil
	case "jpeg", "jpg":
		return "jpeg", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func contentTypeFor(format string) string {
	if format == "jpeg" {
		return "image/jpeg"
	}
	return "image/png"
}

func extensionFor(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return ".png"
}
