package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"imagedesk/core"

	"github.com/sirupsen/logrus"
)

// ErrUploadFailed matches every failure of the two-phase protocol.
var ErrUploadFailed = errors.New("upload failed")

// Protocol steps, as recorded in StepError.
const (
	StepRequestSlot = "request-slot"
	StepTransfer    = "transfer"
	StepConfirm     = "confirm"
)

// Protocol is the file storage side of the two-phase upload.
type Protocol interface {
	RequestUploadSlot(ctx context.Context, meta core.UploadMetadata) (*core.UploadSlot, error)
	Transfer(ctx context.Context, slot *core.UploadSlot, data []byte, contentType string) error
	ConfirmUpload(ctx context.Context, c core.UploadConfirmation) (*core.ConfirmedUpload, error)
}

// StepError reports the protocol step an upload failed at.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("upload failed at %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{ErrUploadFailed, e.Err}
}

// Blob is an encoded file waiting to be persisted. It is kept by the caller
// across failed attempts so a retry does not need to re-encode.
type Blob struct {
	Data        []byte
	FileName    string
	ContentType string
}

func (b *Blob) Size() int64 {
	return int64(len(b.Data))
}

// Checksum is the hex SHA-256 of the blob, as confirmUpload expects it.
func (b *Blob) Checksum() string {
	sum := sha256.Sum256(b.Data)
	return hex.EncodeToString(sum[:])
}

type Uploader struct {
	proto Protocol
}

func NewUploader(proto Protocol) *Uploader {
	return &Uploader{proto: proto}
}

// Upload runs request slot, transfer and confirm in order. Nothing is retried.
func (u *Uploader) Upload(ctx context.Context, owner core.Owner, blob *Blob) (*core.ConfirmedUpload, error) {
	if blob == nil || len(blob.Data) == 0 {
		return nil, &StepError{Step: StepRequestSlot, Err: errors.New("empty blob")}
	}
	log := logrus.WithFields(logrus.Fields{
		"owner_id":  owner.OwnerID,
		"file_name": blob.FileName,
		"size":      len(blob.Data),
	})

	slot, err := u.proto.RequestUploadSlot(ctx, core.UploadMetadata{
		Owner:       owner,
		FileName:    blob.FileName,
		ContentType: blob.ContentType,
	})
	if err != nil {
		log.WithError(err).Error("Failed to request upload slot")
		return nil, &StepError{Step: StepRequestSlot, Err: err}
	}
	log = log.WithField("object_key", slot.ObjectKey)

	if err := u.proto.Transfer(ctx, slot, blob.Data, blob.ContentType); err != nil {
		log.WithError(err).Error("Failed to transfer upload")
		return nil, &StepError{Step: StepTransfer, Err: err}
	}

	confirmed, err := u.proto.ConfirmUpload(ctx, core.UploadConfirmation{
		ObjectKey:   slot.ObjectKey,
		Size:        blob.Size(),
		Checksum:    blob.Checksum(),
		ContentType: blob.ContentType,
	})
	if err != nil {
		log.WithError(err).Error("Failed to confirm upload")
		return nil, &StepError{Step: StepConfirm, Err: err}
	}

	log.WithField("confirmed_id", confirmed.ConfirmedID).Info("Upload complete")
	return confirmed, nil
}
