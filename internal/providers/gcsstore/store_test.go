package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"roomstaging/internal/assetstore"
)

type stubBucket struct {
	objects  map[string]bool
	writes   []string
	writeErr error
	expires  time.Time
}

func (b *stubBucket) write(_ context.Context, key string, _ []byte, createOnly bool) error {
	b.writes = append(b.writes, key)
	if b.writeErr != nil {
		return b.writeErr
	}
	if createOnly && b.objects[key] {
		return &googleapi.Error{Code: http.StatusPreconditionFailed, Message: "conditionNotMet"}
	}
	b.objects[key] = true
	return nil
}

func (b *stubBucket) attrs(_ context.Context, key string) error {
	if !b.objects[key] {
		return storage.ErrObjectNotExist
	}
	return nil
}

func (b *stubBucket) signedURL(key string, expires time.Time) (string, error) {
	b.expires = expires
	return "https://storage.googleapis.com/bucket/" + key + "?X-Goog-Signature=sig", nil
}

func newTestStore(b *stubBucket) *Store {
	s := newStore(b, time.Hour, nil)
	s.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestUploadAutorenameOnPrecondition(t *testing.T) {
	b := &stubBucket{objects: map[string]bool{"renders/job_1/original.jpg": true}}
	stored, err := newTestStore(b).Upload(context.Background(), "/renders/job_1/original.jpg", []byte("foo"), assetstore.UploadOptions{
		Mode:       assetstore.WriteModeAdd,
		Autorename: true,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if stored != "/renders/job_1/original (1).jpg" {
		t.Fatalf("stored = %q", stored)
	}
	if len(b.writes) != 2 {
		t.Fatalf("writes = %v", b.writes)
	}
}

func TestUploadOverwriteSkipsPrecondition(t *testing.T) {
	b := &stubBucket{objects: map[string]bool{"final/a.jpg": true}}
	stored, err := newTestStore(b).Upload(context.Background(), "final/a.jpg", []byte("new"), assetstore.UploadOptions{Mode: assetstore.WriteModeOverwrite})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if stored != "/final/a.jpg" {
		t.Fatalf("stored = %q", stored)
	}
}

func TestSignedLinks(t *testing.T) {
	b := &stubBucket{objects: map[string]bool{"renders/job_1/preview.jpg": true}}
	store := newTestStore(b)

	url, err := assetstore.New(store, nil).EnsureSharedLink(context.Background(), "/renders/job_1/preview.jpg")
	if err != nil {
		t.Fatalf("EnsureSharedLink: %v", err)
	}
	if url != "https://storage.googleapis.com/bucket/renders/job_1/preview.jpg?X-Goog-Signature=sig" {
		t.Fatalf("url = %q", url)
	}
	if want := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC); !b.expires.Equal(want) {
		t.Fatalf("expires = %s, want %s", b.expires, want)
	}

	if _, err := store.CreateSharedLink(context.Background(), "/missing.jpg", nil); assetstore.Classify(err) != assetstore.CauseNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}

	link, err := assetstore.New(store, nil).CreateGatedLink(context.Background(), "/renders/job_1/preview.jpg", "job_1")
	if err != nil {
		t.Fatalf("CreateGatedLink: %v", err)
	}
	if link.Tier != assetstore.TierTemporary {
		t.Fatalf("tier = %q", link.Tier)
	}
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		err  error
		want assetstore.Cause
	}{
		{err: &googleapi.Error{Code: 412}, want: assetstore.CauseConflict},
		{err: &googleapi.Error{Code: 403}, want: assetstore.CauseAuth},
		{err: &googleapi.Error{Code: 404}, want: assetstore.CauseNotFound},
		{err: &googleapi.Error{Code: 503}, want: assetstore.CauseTransport},
		{err: &googleapi.Error{Code: 400}, want: assetstore.CauseOther},
		{err: fmt.Errorf("attrs: %w", storage.ErrObjectNotExist), want: assetstore.CauseNotFound},
		{err: context.DeadlineExceeded, want: assetstore.CauseTransport},
		{err: errors.New("boom"), want: assetstore.CauseOther},
	}
	for _, tc := range tests {
		if got := assetstore.Classify(classify("upload", "/a.jpg", tc.err)); got != tc.want {
			t.Fatalf("classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
