package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

type (
	// StoredImage is the metadata of a confirmed upload held by the file service.
	StoredImage struct {
		ID          string    `json:"id"`
		Owner       Owner     `json:"owner"`
		DisplayName string    `json:"displayName"`
		ContentType string    `json:"contentType"`
		ObjectKey   string    `json:"objectKey"`
		Size        int64     `json:"size"`
		Checksum    string    `json:"checksum"`
		Width       int       `json:"width"`
		Height      int       `json:"height"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// PendingUpload is a reserved upload slot waiting for its bytes and confirmation.
	PendingUpload struct {
		ObjectKey   string    `json:"objectKey"`
		Owner       Owner     `json:"owner"`
		DisplayName string    `json:"displayName"`
		ContentType string    `json:"contentType"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}

	// ImageInfo is one entry of the gallery listing as served over the wire.
	ImageInfo struct {
		ID           string `json:"id"`
		DisplayName  string `json:"displayName"`
		ThumbnailURL string `json:"thumbnailUrl"`
		ContentType  string `json:"contentType"`
	}

	// ImageCandidate is one selectable image in the editor's gallery.
	ImageCandidate struct {
		ID           string `json:"id"`
		DisplayName  string `json:"displayName"`
		ThumbnailRef string `json:"thumbnailRef"`
	}

	// UploadMetadata describes the file a client wants to upload.
	UploadMetadata struct {
		Owner       Owner  `json:"owner"`
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
	}

	// UploadSlot is the answer to an upload slot request.
	UploadSlot struct {
		TransferURL string    `json:"transferUrl"`
		ObjectKey   string    `json:"objectKey"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}

	// UploadConfirmation finalises a transferred object.
	UploadConfirmation struct {
		ObjectKey   string `json:"objectKey"`
		Size        int64  `json:"size"`
		Checksum    string `json:"checksum"`
		ContentType string `json:"contentType"`
	}

	// ConfirmedUpload is returned once the file service accepted an object.
	ConfirmedUpload struct {
		ConfirmedID string `json:"confirmedId"`
		ObjectKey   string `json:"objectKey"`
		DisplayName string `json:"displayName"`
	}

	// ImageStore persists image metadata, pending slots and raw objects.
	ImageStore interface {
		// ListImages returns metadata for every image visible to owner, newest first.
		ListImages(ctx context.Context, owner Owner) ([]*StoredImage, error)
		GetImage(ctx context.Context, id string) (*StoredImage, error)
		SaveImage(ctx context.Context, image *StoredImage) error

		SavePending(ctx context.Context, pending *PendingUpload) error
		GetPending(ctx context.Context, objectKey string) (*PendingUpload, error)
		DeletePending(ctx context.Context, objectKey string) error

		PutObject(ctx context.Context, objectKey string, data []byte) error
		GetObject(ctx context.Context, objectKey string) ([]byte, error)
	}

	// Presigner is implemented by stores that can hand out direct transfer URLs.
	Presigner interface {
		PresignPut(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error)
	}

	// Notifier is told when an owner's image set changed.
	Notifier interface {
		ImagesChanged(owner Owner, imageID string)
	}
)

// IsImageContentType reports whether a content type denotes a raster image the
// editor can decode.
func IsImageContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/png", "image/jpeg", "image/jpg", "image/gif", "image/webp":
		return true
	}
	return false
}
