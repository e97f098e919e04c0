package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// memS3 is an in-memory bucket.
type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func roundTrip(t *testing.T, store FileStore) {
	t.Helper()
	ctx := context.Background()
	if ok, err := store.Exists(ctx, "model.json.lzw"); err != nil || ok {
		t.Fatalf("exists before write: %v %v", ok, err)
	}
	if _, err := store.Read(ctx, "model.json.lzw"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read missing: %v", err)
	}
	for _, data := range []string{"long first checkpoint", "second"} {
		w, err := store.Write(ctx, "model.json.lzw")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, data); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}
	r, err := store.Read(ctx, "model.json.lzw")
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	r.Close()
	if err != nil || string(got) != "second" {
		t.Fatalf("read %q %v", got, err)
	}
	if err := store.Delete(ctx, "model.json.lzw"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "model.json.lzw"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if ok, _ := store.Exists(ctx, "model.json.lzw"); ok {
		t.Fatal("exists after delete")
	}
}

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(filepath.Join(dir, "runs"))
	if err != nil {
		t.Fatal(err)
	}
	roundTrip(t, store)
	entries, _ := os.ReadDir(store.Root())
	if len(entries) != 0 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestS3(t *testing.T) {
	mem := &memS3{objects: make(map[string][]byte)}
	roundTrip(t, NewS3(mem, "bucket", "runs/1"))

	w, _ := NewS3(mem, "bucket", "runs/1").Write(context.Background(), "x")
	io.WriteString(w, "data")
	w.Close()
	if _, ok := mem.objects["runs/1/x"]; !ok {
		t.Fatalf("keys %v", mem.objects)
	}
}

func TestS3UploadError(t *testing.T) {
	mem := &memS3{objects: make(map[string][]byte), putErr: errors.New("upload failed")}
	w, err := NewS3(mem, "bucket", "").Write(context.Background(), "obj")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "data")
	if err := w.Close(); err == nil || err.Error() != "upload failed" {
		t.Fatalf("close: %v", err)
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri, bucket, key string
		ok               bool
	}{
		{"s3://models/fsl/best.json.lzw", "models", "fsl/best.json.lzw", true},
		{"s3://models/best.json.lzw", "models", "best.json.lzw", true},
		{"s3://models", "", "", false},
		{"s3:///key", "", "", false},
		{"/tmp/best.json.lzw", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, err := ParseS3URI(tt.uri)
		if (err == nil) != tt.ok || bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseS3URI(%q) = %q, %q, %v", tt.uri, bucket, key, err)
		}
	}
}

func TestOpenLocal(t *testing.T) {
	dir := t.TempDir()
	loc, err := Open(context.Background(), filepath.Join(dir, "ckpt", "best.json.lzw"), S3Options{})
	if err != nil {
		t.Fatal(err)
	}
	if loc.Path != "best.json.lzw" {
		t.Fatalf("path %q", loc.Path)
	}
	if l, ok := loc.Store.(*Local); !ok || l.Root() != filepath.Join(dir, "ckpt") {
		t.Fatalf("store %#v", loc.Store)
	}
}
