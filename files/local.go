package files

import (
	"bytes"
	"context"
	"imagedesk/core"
	"io"
)

// Local exposes a Service through the collaborator contracts the editor
// consumes, without going over HTTP.
type Local struct {
	svc *Service
}

func NewLocal(svc *Service) *Local {
	return &Local{svc: svc}
}

func (l *Local) ListImages(ctx context.Context, owner core.Owner) ([]core.ImageInfo, error) {
	return l.svc.ListImages(ctx, owner)
}

func (l *Local) FetchPixels(ctx context.Context, imageID string, width int) (io.ReadCloser, error) {
	r, err := l.svc.Preview(ctx, imageID, width)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(r.Data)), nil
}

func (l *Local) RequestUploadSlot(ctx context.Context, meta core.UploadMetadata) (*core.UploadSlot, error) {
	return l.svc.RequestUploadSlot(ctx, meta)
}

// Transfer writes straight into the store; the slot's URL is not needed in-process.
func (l *Local) Transfer(ctx context.Context, slot *core.UploadSlot, data []byte, contentType string) error {
	return l.svc.Transfer(ctx, slot.ObjectKey, bytes.NewReader(data))
}

func (l *Local) ConfirmUpload(ctx context.Context, c core.UploadConfirmation) (*core.ConfirmedUpload, error) {
	return l.svc.ConfirmUpload(ctx, c)
}
