package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Backend stores the serialized ledger. Read returns nil, nil when nothing
// has been written yet.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, buf []byte) error
	String() string
}

// FileBackend keeps the ledger in a local JSON file
type FileBackend struct {
	Path string
}

func (b *FileBackend) Read(ctx context.Context) ([]byte, error) {
	buf, err := ioutil.ReadFile(b.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return buf, err
}

func (b *FileBackend) Write(ctx context.Context, buf []byte) error {
	if dir := filepath.Dir(b.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ioutil.WriteFile(b.Path, buf, 0644)
}

func (b *FileBackend) String() string {
	return b.Path
}

// BucketBackend keeps the ledger in a Google Cloud Storage object so that
// several machines can share it
type BucketBackend struct {
	Object *storage.ObjectHandle
}

func (b *BucketBackend) Read(ctx context.Context) ([]byte, error) {
	r, err := b.Object.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", b, err)
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

func (b *BucketBackend) Write(ctx context.Context, buf []byte) error {
	wr := b.Object.NewWriter(ctx)
	wr.ContentType = "application/json"

	if _, err := wr.Write(buf); err != nil {
		wr.Close()
		return fmt.Errorf("error writing ledger to cloud storage: %w", err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("error writing ledger to cloud storage: %w", err)
	}
	return nil
}

func (b *BucketBackend) String() string {
	return fmt.Sprintf("gs://%s/%s", b.Object.BucketName(), b.Object.ObjectName())
}

// NewBackend returns a bucket backend for gs://bucket/object locations and
// a file backend for anything else
func NewBackend(ctx context.Context, location string, opts ...option.ClientOption) (Backend, error) {
	if !strings.HasPrefix(location, "gs://") {
		return &FileBackend{Path: location}, nil
	}

	parts := strings.SplitN(strings.TrimPrefix(location, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid ledger location %q, expected gs://bucket/object", location)
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating cloud storage client: %w", err)
	}

	return &BucketBackend{Object: client.Bucket(parts[0]).Object(parts[1])}, nil
}
