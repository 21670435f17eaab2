package aws

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"imagedesk/core"
	"io"
	"log"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

const (
	imagesPrefix  = "meta/images/"
	pendingPrefix = "meta/pending/"
	objectsPrefix = "objects/"
)

type s3Store struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	s3Client := s3.NewFromConfig(cfg)

	return &s3Store{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    bucketName,
	}
}

func (s *s3Store) ListImages(ctx context.Context, owner core.Owner) ([]*core.StoredImage, error) {
	images := make([]*core.StoredImage, 0)
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(imagesPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list images for owner %s: %w", owner.OwnerID, err)
		}
		for _, object := range page.Contents {
			var img core.StoredImage
			if err := s.getJSON(ctx, aws.ToString(object.Key), &img); err != nil {
				logrus.WithError(err).WithField("key", aws.ToString(object.Key)).Warn("Failed to read image metadata, skipping")
				continue
			}
			if owner.Matches(img.Owner) {
				images = append(images, &img)
			}
		}
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].CreatedAt.Equal(images[j].CreatedAt) {
			return images[i].ID > images[j].ID
		}
		return images[i].CreatedAt.After(images[j].CreatedAt)
	})
	return images, nil
}

func (s *s3Store) GetImage(ctx context.Context, id string) (*core.StoredImage, error) {
	if err := core.ValidateObjectKey(id); err != nil {
		return nil, err
	}
	var img core.StoredImage
	if err := s.getJSON(ctx, imagesPrefix+id+".json", &img); err != nil {
		return nil, fmt.Errorf("image %s: %w", id, err)
	}
	return &img, nil
}

func (s *s3Store) SaveImage(ctx context.Context, image *core.StoredImage) error {
	if err := core.ValidateObjectKey(image.ID); err != nil {
		return err
	}
	return s.putJSON(ctx, imagesPrefix+image.ID+".json", image)
}

func (s *s3Store) SavePending(ctx context.Context, pending *core.PendingUpload) error {
	if err := core.ValidateObjectKey(pending.ObjectKey); err != nil {
		return err
	}
	return s.putJSON(ctx, pendingKey(pending.ObjectKey), pending)
}

func (s *s3Store) GetPending(ctx context.Context, objectKey string) (*core.PendingUpload, error) {
	var p core.PendingUpload
	if err := s.getJSON(ctx, pendingKey(objectKey), &p); err != nil {
		return nil, fmt.Errorf("pending upload %s: %w", objectKey, err)
	}
	return &p, nil
}

func (s *s3Store) DeletePending(ctx context.Context, objectKey string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(pendingKey(objectKey)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete pending upload %s: %w", objectKey, err)
	}
	return nil
}

func (s *s3Store) PutObject(ctx context.Context, objectKey string, data []byte) error {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return err
	}
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectsPrefix + objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectKey, err)
	}
	return nil
}

func (s *s3Store) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return nil, err
	}
	data, err := s.get(ctx, objectsPrefix+objectKey)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", objectKey, err)
	}
	return data, nil
}

// PresignPut lets clients transfer bytes straight to the bucket.
func (s *s3Store) PresignPut(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error) {
	if err := core.ValidateObjectKey(objectKey); err != nil {
		return "", err
	}
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectsPrefix + objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", objectKey, err)
	}
	return req.URL, nil
}

func (s *s3Store) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func pendingKey(objectKey string) string {
	return pendingPrefix + base64.RawURLEncoding.EncodeToString([]byte(objectKey)) + ".json"
}
