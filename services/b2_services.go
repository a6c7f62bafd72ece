package services

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/kurin/blazer/b2"
)

// B2Service stores uploaded artifacts in a private Backblaze B2 bucket and
// hands out time-limited signed URLs for them.
type B2Service struct {
	client     *b2.Client
	bucketName string
	bucket     *b2.Bucket
	urlTTL     time.Duration
}

type UploadResult struct {
	ObjectName string
	SignedURL  string
	Size       int64
	SHA1       string
}

func NewB2Service(ctx context.Context, keyID, applicationKey, bucketName string, urlTTL time.Duration) (*B2Service, error) {
	client, err := b2.NewClient(ctx, keyID, applicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create B2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}

	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}

	return &B2Service{
		client:     client,
		bucketName: bucketName,
		bucket:     bucket,
		urlTTL:     urlTTL,
	}, nil
}

// Upload writes data under objectName and returns a signed download URL.
func (s *B2Service) Upload(ctx context.Context, objectName string, data []byte, contentType string) (*UploadResult, error) {
	obj := s.bucket.Object(objectName)
	writer := obj.NewWriter(ctx).WithAttrs(&b2.Attrs{ContentType: contentType})

	// Stream to B2 and the hash calculator together
	hasher := sha1.New()
	n, err := io.Copy(io.MultiWriter(writer, hasher), bytes.NewReader(data))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to upload %s to B2: %w", objectName, err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close B2 writer: %w", err)
	}

	signedURL, err := s.GetSignedURL(ctx, objectName, s.urlTTL)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		ObjectName: objectName,
		SignedURL:  signedURL,
		Size:       n,
		SHA1:       hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// GetSignedURL generates a signed GET URL for the private bucket.
func (s *B2Service) GetSignedURL(ctx context.Context, objectName string, duration time.Duration) (string, error) {
	urlObj, err := s.bucket.Object(objectName).AuthURL(ctx, duration, "GET")
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return urlObj.String(), nil
}

func (s *B2Service) Delete(ctx context.Context, objectName string) error {
	if err := s.bucket.Object(objectName).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s from B2: %w", objectName, err)
	}
	return nil
}
