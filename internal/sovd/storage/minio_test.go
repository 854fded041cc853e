package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

type fakeStore struct {
	exists     bool
	existsErr  error
	made       int
	putErr     error
	objects    map[string][]byte
	putOptions minio.PutObjectOptions
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeStore) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.made++
	f.exists = true
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(body)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[bucket+"/"+key] = body
	f.putOptions = opts
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func (f *fakeStore) PresignedGetObject(_ context.Context, bucket, key string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return &url.URL{Scheme: "http", Host: "minio.local", Path: "/" + bucket + "/" + key}, nil
}

func finished() (*model.Command, []*model.ResponseChunk) {
	done := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	cmd := &model.Command{
		ID:          "c-1",
		VehicleID:   "veh-1",
		Name:        "read_dtc",
		Status:      model.CommandStatusCompleted,
		CompletedAt: &done,
	}
	chunks := []*model.ResponseChunk{
		{ID: "r0", CommandID: "c-1", Payload: map[string]any{"dtc": "P0101"}, Sequence: 0},
		{ID: "r1", CommandID: "c-1", Payload: map[string]any{"dtc": "P0300"}, Sequence: 1, IsFinal: true},
	}
	return cmd, chunks
}

func TestArchiveWritesOneDocument(t *testing.T) {
	fs := &fakeStore{}
	m := newMinIO(fs, "sovd-responses", "us-east-1")
	cmd, chunks := finished()

	if err := m.Archive(context.Background(), cmd, chunks); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if fs.made != 1 {
		t.Errorf("MakeBucket called %d times, want 1", fs.made)
	}

	body, ok := fs.objects["sovd-responses/commands/veh-1/c-1.json"]
	if !ok {
		t.Fatalf("object not written, have %v", fs.objects)
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Command.ID != "c-1" || len(doc.Responses) != 2 || !doc.Responses[1].IsFinal {
		t.Errorf("unexpected document: %+v", doc)
	}
	if fs.putOptions.ContentType != contentType {
		t.Errorf("content type = %q", fs.putOptions.ContentType)
	}

	// The bucket check is not repeated.
	if err := m.Archive(context.Background(), cmd, chunks); err != nil {
		t.Fatalf("second Archive: %v", err)
	}
	if fs.made != 1 {
		t.Errorf("MakeBucket called %d times after second archive", fs.made)
	}
}

func TestArchiveErrors(t *testing.T) {
	cmd, chunks := finished()

	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"bucket check fails", &fakeStore{existsErr: errors.New("connection refused")}},
		{"upload fails", &fakeStore{exists: true, putErr: errors.New("access denied")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMinIO(tt.store, "b", "")
			if err := m.Archive(context.Background(), cmd, chunks); err == nil {
				t.Error("Archive() succeeded, want error")
			}
		})
	}
}

func TestPresignedURL(t *testing.T) {
	m := newMinIO(&fakeStore{exists: true}, "b", "")
	cmd, _ := finished()

	got, err := m.PresignedURL(context.Background(), cmd, time.Hour)
	if err != nil {
		t.Fatalf("PresignedURL: %v", err)
	}
	if want := "http://minio.local/b/commands/veh-1/c-1.json"; got != want {
		t.Errorf("PresignedURL() = %q, want %q", got, want)
	}
}
