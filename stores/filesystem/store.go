package filesystem

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"imagedesk/core"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based store rooted at basePath.
//
//	<base>/images/<id>.json      image metadata
//	<base>/pending/<key64>.json  reserved upload slots
//	<base>/objects/<key>         raw bytes
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"images", "pending", "objects"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create storage directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) ListImages(ctx context.Context, owner core.Owner) ([]*core.StoredImage, error) {
	dir := filepath.Join(s.basePath, "images")
	log := logrus.WithFields(logrus.Fields{"owner_id": owner.OwnerID, "path": dir})

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*core.StoredImage{}, nil
		}
		log.WithError(err).Error("Failed to read images directory")
		return nil, err
	}

	images := make([]*core.StoredImage, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read image file %s, skipping", file.Name())
			continue
		}
		var img core.StoredImage
		if err := json.Unmarshal(data, &img); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal image file %s, skipping", file.Name())
			continue
		}
		if owner.Matches(img.Owner) {
			images = append(images, &img)
		}
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].CreatedAt.Equal(images[j].CreatedAt) {
			return images[i].ID > images[j].ID
		}
		return images[i].CreatedAt.After(images[j].CreatedAt)
	})
	log.Debugf("Listed %d images", len(images))
	return images, nil
}

func (s *fsStore) GetImage(ctx context.Context, id string) (*core.StoredImage, error) {
	filePath, err := s.within("images", id+".json")
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"image_id": id, "path": filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Image file not found")
			return nil, fmt.Errorf("image %s: %w", id, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read image file")
		return nil, err
	}

	var img core.StoredImage
	if err := json.Unmarshal(data, &img); err != nil {
		log.WithError(err).Error("Failed to unmarshal image data")
		return nil, err
	}
	return &img, nil
}

func (s *fsStore) SaveImage(ctx context.Context, image *core.StoredImage) error {
	if image.ID == "" {
		return fmt.Errorf("image ID cannot be empty")
	}
	filePath, err := s.within("images", image.ID+".json")
	if err != nil {
		return err
	}
	return writeJSON(filePath, image)
}

func (s *fsStore) SavePending(ctx context.Context, pending *core.PendingUpload) error {
	if err := core.ValidateObjectKey(pending.ObjectKey); err != nil {
		return err
	}
	return writeJSON(s.pendingPath(pending.ObjectKey), pending)
}

func (s *fsStore) GetPending(ctx context.Context, objectKey string) (*core.PendingUpload, error) {
	data, err := os.ReadFile(s.pendingPath(objectKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pending upload %s: %w", objectKey, core.ErrNotFound)
		}
		return nil, err
	}
	var p core.PendingUpload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *fsStore) DeletePending(ctx context.Context, objectKey string) error {
	err := os.Remove(s.pendingPath(objectKey))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fsStore) PutObject(ctx context.Context, objectKey string, data []byte) error {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return err
	}
	filePath, err := s.within("objects", filepath.FromSlash(objectKey))
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"object_key": objectKey, "path": filePath})

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		log.WithError(err).Error("Failed to create object directory")
		return err
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write object")
		return err
	}
	log.WithField("data_length", len(data)).Info("Object stored successfully")
	return nil
}

func (s *fsStore) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return nil, err
	}
	filePath, err := s.within("objects", filepath.FromSlash(objectKey))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", objectKey, core.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (s *fsStore) pendingPath(objectKey string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(objectKey)) + ".json"
	return filepath.Join(s.basePath, "pending", name)
}

// within joins name under dir and refuses results outside of it.
func (s *fsStore) within(dir, name string) (string, error) {
	root, err := filepath.Abs(filepath.Join(s.basePath, dir))
	if err != nil {
		return "", err
	}
	full, err := filepath.Abs(filepath.Join(root, name))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied")
	}
	return full, nil
}

func writeJSON(filePath string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filePath), err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		logrus.WithError(err).WithField("path", filePath).Error("Failed to write file")
		return err
	}
	return nil
}
