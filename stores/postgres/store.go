package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"imagedesk/core"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/sirupsen/logrus"
)

type postgresStore struct {
	db *sql.DB
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	secondary_owner_id TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	object_key TEXT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	checksum TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_images_owner ON images (owner_id, secondary_owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS pending_uploads (
	object_key TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	secondary_owner_id TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS objects (
	object_key TEXT PRIMARY KEY,
	data BYTEA NOT NULL
)`,
}

// NewStore connects to dsn and creates the schema if needed.
func NewStore(ctx context.Context, dsn string) (*postgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return &postgresStore{db}, nil
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

const imageColumns = `id, owner_id, secondary_owner_id, display_name, content_type, object_key, size, checksum, width, height, created_at`

func (s *postgresStore) ListImages(ctx context.Context, owner core.Owner) ([]*core.StoredImage, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE owner_id = $1`
	args := []any{owner.OwnerID}
	if owner.SecondaryOwnerID != "" {
		query += ` AND secondary_owner_id = $2`
		args = append(args, owner.SecondaryOwnerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

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

func (s *postgresStore) GetImage(ctx context.Context, id string) (*core.StoredImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id)
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

func (s *postgresStore) SaveImage(ctx context.Context, image *core.StoredImage) error {
	if image.ID == "" {
		return fmt.Errorf("image ID cannot be empty")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO images (`+imageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			content_type = EXCLUDED.content_type,
			object_key = EXCLUDED.object_key,
			size = EXCLUDED.size,
			checksum = EXCLUDED.checksum,
			width = EXCLUDED.width,
			height = EXCLUDED.height`,
		image.ID, image.Owner.OwnerID, image.Owner.SecondaryOwnerID, image.DisplayName, image.ContentType,
		image.ObjectKey, image.Size, image.Checksum, image.Width, image.Height, image.CreatedAt)
	if err != nil {
		logrus.WithError(err).WithField("image_id", image.ID).Error("Failed to save image")
		return err
	}
	logrus.WithField("image_id", image.ID).Info("Image saved successfully")
	return nil
}

func (s *postgresStore) SavePending(ctx context.Context, pending *core.PendingUpload) error {
	if err := core.ValidateObjectKey(pending.ObjectKey); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO pending_uploads
		(object_key, owner_id, secondary_owner_id, display_name, content_type, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (object_key) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		pending.ObjectKey, pending.Owner.OwnerID, pending.Owner.SecondaryOwnerID, pending.DisplayName, pending.ContentType, pending.ExpiresAt)
	return err
}

func (s *postgresStore) GetPending(ctx context.Context, objectKey string) (*core.PendingUpload, error) {
	var p core.PendingUpload
	err := s.db.QueryRowContext(ctx, `SELECT object_key, owner_id, secondary_owner_id, display_name, content_type, expires_at
		FROM pending_uploads WHERE object_key = $1`, objectKey).
		Scan(&p.ObjectKey, &p.Owner.OwnerID, &p.Owner.SecondaryOwnerID, &p.DisplayName, &p.ContentType, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending upload %s: %w", objectKey, core.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *postgresStore) DeletePending(ctx context.Context, objectKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_uploads WHERE object_key = $1`, objectKey)
	return err
}

func (s *postgresStore) PutObject(ctx context.Context, objectKey string, data []byte) error {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO objects (object_key, data) VALUES ($1, $2)
		ON CONFLICT (object_key) DO UPDATE SET data = EXCLUDED.data`, objectKey, data)
	if err != nil {
		logrus.WithError(err).WithField("object_key", objectKey).Error("Failed to store object")
		return err
	}
	logrus.WithFields(logrus.Fields{"object_key": objectKey, "data_length": len(data)}).Info("Object stored successfully")
	return nil
}

func (s *postgresStore) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE object_key = $1`, objectKey).Scan(&data)
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
	err := row.Scan(&img.ID, &img.Owner.OwnerID, &img.Owner.SecondaryOwnerID, &img.DisplayName, &img.ContentType,
		&img.ObjectKey, &img.Size, &img.Checksum, &img.Width, &img.Height, &img.CreatedAt)
	if err != nil {
		return nil, err
	}
	img.CreatedAt = img.CreatedAt.UTC()
	return &img, nil
}
