package core

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalid marks input rejected by validation.
var ErrInvalid = errors.New("invalid input")

type (
	// Owner scopes images to a client and, optionally, one of the client's sites.
	Owner struct {
		OwnerID          string `json:"ownerId"`
		SecondaryOwnerID string `json:"secondaryOwnerId,omitempty"`
	}

	// Target is the pixel size the exported image must have.
	Target struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
)

// Validate reports whether the owner ids are usable as object key segments.
func (o Owner) Validate() error {
	if err := validSegment(o.OwnerID); err != nil {
		return fmt.Errorf("invalid owner id: %w", err)
	}
	if o.SecondaryOwnerID == "" {
		return nil
	}
	if err := validSegment(o.SecondaryOwnerID); err != nil {
		return fmt.Errorf("invalid secondary owner id: %w", err)
	}
	return nil
}

// Matches reports whether an image stored under other is visible in o's gallery.
// An owner without a secondary id sees every image of the owner.
func (o Owner) Matches(other Owner) bool {
	if o.OwnerID != other.OwnerID {
		return false
	}
	return o.SecondaryOwnerID == "" || o.SecondaryOwnerID == other.SecondaryOwnerID
}

// KeyPrefix is the object key prefix under which the owner's uploads live.
func (o Owner) KeyPrefix() string {
	if o.SecondaryOwnerID == "" {
		return o.OwnerID + "/"
	}
	return path.Join(o.OwnerID, o.SecondaryOwnerID) + "/"
}

// Aspect returns width/height.
func (t Target) Aspect() float64 {
	if t.Height == 0 {
		return 0
	}
	return float64(t.Width) / float64(t.Height)
}

func (t Target) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: target size must be positive, got %dx%d", ErrInvalid, t.Width, t.Height)
	}
	if t.Width > MaxTargetSide || t.Height > MaxTargetSide {
		return fmt.Errorf("%w: target size %dx%d exceeds %d", ErrInvalid, t.Width, t.Height, MaxTargetSide)
	}
	return nil
}

// MaxTargetSide bounds a single side of the requested export.
const MaxTargetSide = 8192

func validSegment(s string) error {
	if s == "" || s == "." || s == ".." {
		return fmt.Errorf("%w: must not be empty or a dot directory", ErrInvalid)
	}
	if path.Base(s) != s {
		return fmt.Errorf("%w: must not be a path", ErrInvalid)
	}
	return nil
}

// ValidateObjectKey rejects keys that could escape a backend's namespace.
func ValidateObjectKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: object key %q", ErrInvalid, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if err := validSegment(seg); err != nil {
			return fmt.Errorf("invalid object key %q: %w", key, err)
		}
	}
	return nil
}
