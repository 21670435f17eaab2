package memory

import (
	"context"
	"fmt"
	"imagedesk/core"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// memStore keeps images, pending slots and objects in maps guarded by one lock.
type memStore struct {
	mu      sync.RWMutex
	images  map[string]*core.StoredImage
	pending map[string]*core.PendingUpload
	objects map[string][]byte
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		images:  make(map[string]*core.StoredImage),
		pending: make(map[string]*core.PendingUpload),
		objects: make(map[string][]byte),
	}
}

func (s *memStore) ListImages(ctx context.Context, owner core.Owner) ([]*core.StoredImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	images := make([]*core.StoredImage, 0)
	for _, img := range s.images {
		if owner.Matches(img.Owner) {
			copied := *img
			images = append(images, &copied)
		}
	}
	sortNewestFirst(images)

	logrus.WithField("owner_id", owner.OwnerID).Debugf("Listed %d images", len(images))
	return images, nil
}

func (s *memStore) GetImage(ctx context.Context, id string) (*core.StoredImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[id]
	if !ok {
		logrus.WithField("image_id", id).Warn("Image not found")
		return nil, fmt.Errorf("image %s: %w", id, core.ErrNotFound)
	}
	copied := *img
	return &copied, nil
}

func (s *memStore) SaveImage(ctx context.Context, image *core.StoredImage) error {
	if image.ID == "" {
		return fmt.Errorf("image ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *image
	s.images[image.ID] = &copied
	logrus.WithFields(logrus.Fields{"image_id": image.ID, "owner_id": image.Owner.OwnerID}).Info("Image saved successfully")
	return nil
}

func (s *memStore) SavePending(ctx context.Context, pending *core.PendingUpload) error {
	if err := core.ValidateObjectKey(pending.ObjectKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *pending
	s.pending[pending.ObjectKey] = &copied
	return nil
}

func (s *memStore) GetPending(ctx context.Context, objectKey string) (*core.PendingUpload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pending[objectKey]
	if !ok {
		return nil, fmt.Errorf("pending upload %s: %w", objectKey, core.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (s *memStore) DeletePending(ctx context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, objectKey)
	return nil
}

func (s *memStore) PutObject(ctx context.Context, objectKey string, data []byte) error {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[objectKey] = buf
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"object_key": objectKey, "data_length": len(data)}).Info("Object stored successfully")
	return nil
}

func (s *memStore) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", objectKey, core.ErrNotFound)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func sortNewestFirst(images []*core.StoredImage) {
	sort.Slice(images, func(i, j int) bool {
		if images[i].CreatedAt.Equal(images[j].CreatedAt) {
			return images[i].ID > images[j].ID
		}
		return images[i].CreatedAt.After(images[j].CreatedAt)
	})
}
