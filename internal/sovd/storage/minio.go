// Package storage archives finished commands to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

const contentType = "application/json"

var _ core.Archiver = (*MinIO)(nil)

// objectStore is the subset of *minio.Client used by MinIO.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Document is the archived form of a finished command.
type Document struct {
	Command    *model.Command         `json:"command"`
	Responses  []*model.ResponseChunk `json:"responses"`
	ArchivedAt time.Time              `json:"archived_at"`
}

// MinIO writes one JSON document per finished command.
type MinIO struct {
	client     objectStore
	bucketName string
	region     string

	bucketMu sync.Mutex
	bucketOK bool
}

// NewMinIO creates the archiver. The bucket is checked on first use.
func NewMinIO(opts *options.S3Options) (*MinIO, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newMinIO(client, opts.BucketName, opts.Region), nil
}

func newMinIO(client objectStore, bucket, region string) *MinIO {
	return &MinIO{client: client, bucketName: bucket, region: region}
}

// ObjectKey returns where a command's document is stored.
func ObjectKey(cmd *model.Command) string {
	return path.Join("commands", cmd.VehicleID, cmd.ID+".json")
}

// CheckBucket creates the bucket if it does not exist yet.
func (p *MinIO) CheckBucket(ctx context.Context) error {
	p.bucketMu.Lock()
	defer p.bucketMu.Unlock()
	if p.bucketOK {
		return nil
	}

	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", p.bucketName)
		if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	p.bucketOK = true
	return nil
}

// Archive uploads the command and its chunks as a single document.
func (p *MinIO) Archive(ctx context.Context, cmd *model.Command, chunks []*model.ResponseChunk) error {
	if err := p.CheckBucket(ctx); err != nil {
		return err
	}

	if chunks == nil {
		chunks = []*model.ResponseChunk{}
	}
	body, err := json.Marshal(Document{Command: cmd, Responses: chunks, ArchivedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode archive of command %s: %w", cmd.ID, err)
	}

	key := ObjectKey(cmd)
	_, err = p.client.PutObject(ctx, p.bucketName, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: map[string]string{"command-status": string(cmd.Status)},
		})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	log.Debug("Archived command", "command_id", cmd.ID, "object", key, "bytes", len(body))
	return nil
}

// PresignedURL returns a time-limited download link for an archived command.
func (p *MinIO) PresignedURL(ctx context.Context, cmd *model.Command, expiry time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucketName, ObjectKey(cmd), expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return u.String(), nil
}
