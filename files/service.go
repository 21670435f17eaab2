package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"imagedesk/core"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrSizeMismatch     = errors.New("size mismatch")
	ErrSlotExpired      = errors.New("upload slot expired")
	ErrTooLarge         = errors.New("upload too large")
	ErrNotAnImage       = errors.New("content is not a decodable image")
)

// ThumbnailWidth is the preview width used for gallery thumbnails.
const ThumbnailWidth = 240

type Options struct {
	PublicBaseURL  string
	SlotTTL        time.Duration
	MaxUploadBytes int64
}

// Service is the file storage collaborator: it lists an owner's images, serves
// previews and runs the server side of the two-phase upload protocol.
type Service struct {
	store    core.ImageStore
	signer   *TokenSigner
	notifier core.Notifier
	opts     Options
	now      func() time.Time
}

func NewService(store core.ImageStore, signer *TokenSigner, opts Options) *Service {
	if opts.SlotTTL <= 0 {
		opts.SlotTTL = 15 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Service{store: store, signer: signer, opts: opts, now: time.Now}
}

// SetNotifier registers the receiver of image-set change events.
func (s *Service) SetNotifier(n core.Notifier) {
	s.notifier = n
}

func (s *Service) Signer() *TokenSigner {
	return s.signer
}

// ListImages returns the wire listing of every stored item visible to owner.
func (s *Service) ListImages(ctx context.Context, owner core.Owner) ([]core.ImageInfo, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	images, err := s.store.ListImages(ctx, owner)
	if err != nil {
		return nil, err
	}
	infos := make([]core.ImageInfo, 0, len(images))
	for _, img := range images {
		infos = append(infos, core.ImageInfo{
			ID:           img.ID,
			DisplayName:  img.DisplayName,
			ThumbnailURL: s.ThumbnailURL(img.ID),
			ContentType:  img.ContentType,
		})
	}
	return infos, nil
}

func (s *Service) ThumbnailURL(id string) string {
	return s.opts.PublicBaseURL + "/api/v1/images/" + url.PathEscape(id) + "/thumbnail"
}

// RequestUploadSlot reserves an object key and returns where to PUT the bytes.
func (s *Service) RequestUploadSlot(ctx context.Context, meta core.UploadMetadata) (*core.UploadSlot, error) {
	if err := meta.Owner.Validate(); err != nil {
		return nil, err
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(meta.FileName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := meta.Owner.KeyPrefix() + ulid.Make().String() + strings.ToLower(path.Ext(meta.FileName))
	expiresAt := s.now().Add(s.opts.SlotTTL)
	pending := &core.PendingUpload{
		ObjectKey:   objectKey,
		Owner:       meta.Owner,
		DisplayName: displayName(meta.FileName),
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}
	if err := s.store.SavePending(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to reserve upload slot: %w", err)
	}

	transferURL, err := s.transferURL(ctx, objectKey, contentType)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"object_key": objectKey,
		"owner_id":   meta.Owner.OwnerID,
	}).Info("Upload slot reserved")
	return &core.UploadSlot{TransferURL: transferURL, ObjectKey: objectKey, ExpiresAt: expiresAt}, nil
}

func (s *Service) transferURL(ctx context.Context, objectKey, contentType string) (string, error) {
	if p, ok := s.store.(core.Presigner); ok {
		return p.PresignPut(ctx, objectKey, contentType, s.opts.SlotTTL)
	}
	token, err := s.signer.Sign(objectKey, contentType, s.opts.SlotTTL)
	if err != nil {
		return "", err
	}
	return s.opts.PublicBaseURL + "/api/v1/transfer/" + escapeKey(objectKey) + "?token=" + url.QueryEscape(token), nil
}

// Transfer stores the raw bytes of a reserved slot.
func (s *Service) Transfer(ctx context.Context, objectKey string, body io.Reader) error {
	pending, err := s.livePending(ctx, objectKey)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(body, s.opts.MaxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read upload body: %w", err)
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return ErrTooLarge
	}
	return s.store.PutObject(ctx, pending.ObjectKey, data)
}

// ConfirmUpload verifies a transferred object and records it as an image.
func (s *Service) ConfirmUpload(ctx context.Context, c core.UploadConfirmation) (*core.ConfirmedUpload, error) {
	log := logrus.WithField("object_key", c.ObjectKey)

	pending, err := s.livePending(ctx, c.ObjectKey)
	if err != nil {
		return nil, err
	}
	data, err := s.store.GetObject(ctx, c.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("object not transferred: %w", err)
	}
	if int64(len(data)) != c.Size {
		log.WithFields(logrus.Fields{"expected": c.Size, "actual": len(data)}).Warn("Upload size mismatch")
		return nil, ErrSizeMismatch
	}
	sum := sha256.Sum256(data)
	if !strings.EqualFold(hex.EncodeToString(sum[:]), c.Checksum) {
		log.Warn("Upload checksum mismatch")
		return nil, ErrChecksumMismatch
	}

	contentType := c.ContentType
	if contentType == "" {
		contentType = pending.ContentType
	}
	img := &core.StoredImage{
		ID:          ulid.Make().String(),
		Owner:       pending.Owner,
		DisplayName: pending.DisplayName,
		ContentType: contentType,
		ObjectKey:   c.ObjectKey,
		Size:        c.Size,
		Checksum:    strings.ToLower(c.Checksum),
		CreatedAt:   s.now().UTC(),
	}
	if core.IsImageContentType(contentType) {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			log.WithError(err).Warn("Uploaded image could not be decoded")
			return nil, ErrNotAnImage
		}
		img.Width, img.Height = cfg.Width, cfg.Height
	}

	if err := s.store.SaveImage(ctx, img); err != nil {
		return nil, err
	}
	if err := s.store.DeletePending(ctx, c.ObjectKey); err != nil {
		log.WithError(err).Warn("Failed to delete pending upload")
	}
	if s.notifier != nil {
		s.notifier.ImagesChanged(img.Owner, img.ID)
	}

	log.WithField("image_id", img.ID).Info("Upload confirmed")
	return &core.ConfirmedUpload{ConfirmedID: img.ID, ObjectKey: img.ObjectKey, DisplayName: img.DisplayName}, nil
}

func (s *Service) livePending(ctx context.Context, objectKey string) (*core.PendingUpload, error) {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return nil, err
	}
	pending, err := s.store.GetPending(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	if s.now().After(pending.ExpiresAt) {
		return nil, ErrSlotExpired
	}
	return pending, nil
}

// Original returns the stored bytes of an image together with its metadata.
func (s *Service) Original(ctx context.Context, id string) (*core.StoredImage, []byte, error) {
	img, err := s.store.GetImage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.store.GetObject(ctx, img.ObjectKey)
	if err != nil {
		return nil, nil, err
	}
	return img, data, nil
}

func displayName(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}

func escapeKey(objectKey string) string {
	segs := strings.Split(objectKey, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
