package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"imagedesk/core"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	secondary_owner_id TEXT NOT NULL DEFAULT '',
	display_name TEXT,
	content_type TEXT,
	object_key TEXT NOT NULL,
	size INTEGER,
	checksum TEXT,
	width INTEGER,
	height INTEGER,
	created_at DATETIME
);`,
	`CREATE INDEX IF NOT EXISTS idx_images_owner ON images (owner_id, secondary_owner_id);`,
	`CREATE TABLE IF NOT EXISTS pending_uploads (
	object_key TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	secondary_owner_id TEXT NOT NULL DEFAULT '',
	display_name TEXT,
	content_type TEXT,
	expires_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS objects (
	object_key TEXT PRIMARY KEY,
	data BLOB
);`,
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}
	for _, stmt := range schema {
		if _, err = db.Exec(stmt); err != nil {
			log.Fatalf("failed to create tables: %v", err)
		}
	}
	return &sqliteStore{db}
}

// Close releases the underlying database handle.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) ListImages(ctx context.Context, owner core.Owner) ([]*core.StoredImage, error) {
	query := `SELECT id, owner_id, secondary_owner_id, display_name, content_type, object_key, size, checksum, width, height, created_at
		FROM images WHERE owner_id = ?`
	args := []any{owner.OwnerID}
	if owner.SecondaryOwnerID != "" {
		query += " AND secondary_owner_id = ?"
		args = append(args, owner.SecondaryOwnerID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logrus.WithError(err).WithField("owner_id", owner.OwnerID).Error("Failed to list images")
		return nil, err
	}
	defer rows.Close()

	images := make([]*core.StoredImage, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *sqliteStore) GetImage(ctx context.Context, id string) (*core.StoredImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, owner_id, secondary_owner_id, display_name, content_type, object_key, size, checksum, width, height, created_at
		FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithField("image_id", id).Warn("Image not found")
			return nil, fmt.Errorf("image %s: %w", id, core.ErrNotFound)
		}
		return nil, err
	}
	return img, nil
}

func (s *sqliteStore) SaveImage(ctx context.Context, image *core.StoredImage) error {
	if image.ID == "" {
		return fmt.Errorf("image ID cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO images
		(id, owner_id, secondary_owner_id, display_name, content_type, object_key, size, checksum, width, height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		image.ID, image.Owner.OwnerID, image.Owner.SecondaryOwnerID, image.DisplayName, image.ContentType,
		image.ObjectKey, image.Size, image.Checksum, image.Width, image.Height, image.CreatedAt)
	if err != nil {
		logrus.WithError(err).WithField("image_id", image.ID).Error("Failed to save image")
		return err
	}
	logrus.WithField("image_id", image.ID).Info("Image saved successfully")
	return nil
}

func (s *sqliteStore) SavePending(ctx context.Context, pending *core.PendingUpload) error {
	if err := core.ValidateObjectKey(pending.ObjectKey); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO pending_uploads
		(object_key, owner_id, secondary_owner_id, display_name, content_type, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		pending.ObjectKey, pending.Owner.OwnerID, pending.Owner.SecondaryOwnerID, pending.DisplayName, pending.ContentType, pending.ExpiresAt)
	return err
}

func (s *sqliteStore) GetPending(ctx context.Context, objectKey string) (*core.PendingUpload, error) {
	var p core.PendingUpload
	var displayName, contentType sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT object_key, owner_id, secondary_owner_id, display_name, content_type, expires_at
		FROM pending_uploads WHERE object_key = ?`, objectKey).
		Scan(&p.ObjectKey, &p.Owner.OwnerID, &p.Owner.SecondaryOwnerID, &displayName, &contentType, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending upload %s: %w", objectKey, core.ErrNotFound)
		}
		return nil, err
	}
	p.DisplayName = displayName.String
	p.ContentType = contentType.String
	return &p, nil
}

func (s *sqliteStore) DeletePending(ctx context.Context, objectKey string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pending_uploads WHERE object_key = ?", objectKey)
	return err
}

func (s *sqliteStore) PutObject(ctx context.Context, objectKey string, data []byte) error {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO objects (object_key, data) VALUES (?, ?)", objectKey, data)
	if err != nil {
		logrus.WithError(err).WithField("object_key", objectKey).Error("Failed to store object")
		return err
	}
	logrus.WithFields(logrus.Fields{"object_key": objectKey, "data_length": len(data)}).Info("Object stored successfully")
	return nil
}

func (s *sqliteStore) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM objects WHERE object_key = ?", objectKey).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("object %s: %w", objectKey, core.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*core.StoredImage, error) {
	var img core.StoredImage
	var displayName, contentType, checksum sql.NullString
	var createdAt time.Time
	err := row.Scan(&img.ID, &img.Owner.OwnerID, &img.Owner.SecondaryOwnerID, &displayName, &contentType,
		&img.ObjectKey, &img.Size, &checksum, &img.Width, &img.Height, &createdAt)
	if err != nil {
		return nil, err
	}
	img.DisplayName = displayName.String
	img.ContentType = contentType.String
	img.Checksum = checksum.String
	img.CreatedAt = createdAt
	return &img, nil
}
