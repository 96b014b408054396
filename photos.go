package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// PhotoUploadTTL bounds how long a presigned upload URL stays valid.
const PhotoUploadTTL = 15 * time.Minute

// PhotoViewTTL bounds how long a presigned download URL stays valid.
const PhotoViewTTL = time.Hour

// PhotoStoreConfig holds the object storage settings for profile photos.
type PhotoStoreConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// PhotoStore hands out presigned URLs so the browser uploads photos straight
// to object storage. The server never proxies image bytes.
type PhotoStore struct {
	cfg    PhotoStoreConfig
	logger Logger
}

// NewPhotoStore creates a photo store backed by an S3 compatible bucket.
func NewPhotoStore(cfg PhotoStoreConfig) *PhotoStore {
	return &PhotoStore{cfg: cfg, logger: defLogger{}}
}

// WithLogger overrides the logger used by the store.
func (p *PhotoStore) WithLogger(logger Logger) *PhotoStore {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Configured reports whether the store has enough settings to presign.
func (p *PhotoStore) Configured() bool {
	return p.cfg.Bucket != "" && p.cfg.AccessKey != "" && p.cfg.SecretKey != ""
}

func (p *PhotoStore) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(p.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.cfg.AccessKey,
			p.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load object storage config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if p.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(p.cfg.Endpoint)
		}
	})

	return s3.NewPresignClient(client), nil
}

// PhotoKey places every photo under its submission id so re-uploads replace
// the previous image instead of accumulating orphans.
func PhotoKey(id uuid.UUID, ext string) string {
	return fmt.Sprintf("%s/photo.%s", id.String(), safePhotoExt(ext))
}

// photoExts are the upload formats the portal accepts.
var photoExts = []string{"jpg", "jpeg", "png", "webp"}

func safePhotoExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	for _, allowed := range photoExts {
		if ext == allowed {
			return ext
		}
	}
	return "jpg"
}

// OwnsPhotoKey reports whether key is a well formed photo key under the given
// submission's prefix. Confirmation requests carry the key back from the
// client, so it has to be checked against the row before it is persisted.
func OwnsPhotoKey(id uuid.UUID, key string) bool {
	prefix := id.String() + "/photo."
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	ext := strings.TrimPrefix(key, prefix)
	for _, allowed := range photoExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

// PresignUpload returns the storage key and a short lived PUT URL for a
// submission's photo.
func (p *PhotoStore) PresignUpload(ctx context.Context, id uuid.UUID, ext string) (string, string, error) {
	if !p.Configured() {
		return "", "", NewMisconfiguredError("photo storage is not configured")
	}

	presignClient, err := p.presignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := p.cfg.Bucket
	key := PhotoKey(id, ext)

	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(PhotoUploadTTL))
	if err != nil {
		return "", "", NewUpstreamError(err, "failed to presign photo upload")
	}

	return key, req.URL, nil
}

// PresignView returns a short lived GET URL for a stored photo key.
func (p *PhotoStore) PresignView(ctx context.Context, key string) (string, error) {
	if !p.Configured() {
		return "", NewMisconfiguredError("photo storage is not configured")
	}
	if key == "" {
		return "", NewMissingParameterError("photo_path")
	}

	presignClient, err := p.presignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := p.cfg.Bucket

	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(PhotoViewTTL))
	if err != nil {
		return "", NewUpstreamError(err, "failed to presign photo download")
	}

	return req.URL, nil
}
