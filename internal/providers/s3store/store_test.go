package s3store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"roomstaging/internal/assetstore"
)

type stubObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	putErr  error
	headErr error
}

func newStubObjects() *stubObjects {
	return &stubObjects{objects: map[string][]byte{}}
}

func (s *stubObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, in)
	if s.putErr != nil {
		return nil, s.putErr
	}
	key := aws.ToString(in.Key)
	if aws.ToString(in.IfNoneMatch) == "*" {
		if _, exists := s.objects[key]; exists {
			return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "exists"}
		}
	}
	s.objects[key] = []byte("stored")
	return &s3.PutObjectOutput{}, nil
}

func (s *stubObjects) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headErr != nil {
		return nil, s.headErr
	}
	if _, ok := s.objects[aws.ToString(in.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

type stubPresigner struct {
	expires time.Duration
}

func (p *stubPresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.amazonaws.com/" + aws.ToString(in.Key) + "?X-Amz-Signature=sig",
		Method: "GET",
	}, nil
}

func TestUploadAddModeAutorenames(t *testing.T) {
	objects := newStubObjects()
	objects.objects["renders/job_1/original.jpg"] = []byte("old")
	store := newStore("bucket", time.Hour, objects, &stubPresigner{}, nil)

	stored, err := store.Upload(context.Background(), "/renders/job_1/original.jpg", []byte("foo"), assetstore.UploadOptions{
		Mode:       assetstore.WriteModeAdd,
		Autorename: true,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if stored != "/renders/job_1/original (1).jpg" {
		t.Fatalf("stored = %q", stored)
	}
	if aws.ToString(objects.puts[0].IfNoneMatch) != "*" {
		t.Fatalf("add mode must be create-only")
	}
	if aws.ToString(objects.puts[0].ContentType) != "image/jpeg" {
		t.Fatalf("content type = %q", aws.ToString(objects.puts[0].ContentType))
	}
}

func TestUploadAddModeWithoutAutorenameConflicts(t *testing.T) {
	objects := newStubObjects()
	objects.objects["a.jpg"] = []byte("old")
	store := newStore("bucket", time.Hour, objects, &stubPresigner{}, nil)

	_, err := store.Upload(context.Background(), "/a.jpg", []byte("foo"), assetstore.UploadOptions{Mode: assetstore.WriteModeAdd})
	if assetstore.Classify(err) != assetstore.CauseConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUploadOverwrite(t *testing.T) {
	objects := newStubObjects()
	objects.objects["final/a.jpg"] = []byte("old")
	store := newStore("bucket", time.Hour, objects, &stubPresigner{}, nil)

	stored, err := store.Upload(context.Background(), "/final/a.jpg", []byte("new"), assetstore.UploadOptions{Mode: assetstore.WriteModeOverwrite})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if stored != "/final/a.jpg" || objects.puts[0].IfNoneMatch != nil {
		t.Fatalf("unexpected overwrite put: %q %+v", stored, objects.puts[0])
	}
}

func TestSharedLinksArePresigned(t *testing.T) {
	objects := newStubObjects()
	objects.objects["renders/job_1/preview.jpg"] = []byte("img")
	presigner := &stubPresigner{}
	store := newStore("bucket", 2*time.Hour, objects, presigner, nil)

	url, err := assetstore.New(store, nil).EnsureSharedLink(context.Background(), "/renders/job_1/preview.jpg")
	if err != nil {
		t.Fatalf("EnsureSharedLink: %v", err)
	}
	if strings.Contains(url, "raw=1") || !strings.HasSuffix(url, "X-Amz-Signature=sig") {
		t.Fatalf("presigned url must not be rewritten: %q", url)
	}
	if presigner.expires != 2*time.Hour {
		t.Fatalf("expires = %s", presigner.expires)
	}

	if _, err := store.CreateSharedLink(context.Background(), "/missing.jpg", nil); assetstore.Classify(err) != assetstore.CauseNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestGatedLinkDegradesToTemporary(t *testing.T) {
	objects := newStubObjects()
	objects.objects["final/a.jpg"] = []byte("img")
	store := newStore("bucket", time.Hour, objects, &stubPresigner{}, nil)

	link, err := assetstore.New(store, nil).CreateGatedLink(context.Background(), "/final/a.jpg", "job_1")
	if err != nil {
		t.Fatalf("CreateGatedLink: %v", err)
	}
	if link.Tier != assetstore.TierTemporary || link.FallbackReason != assetstore.CauseOther {
		t.Fatalf("unexpected link %+v", link)
	}
	if !strings.HasPrefix(link.URL, "https://bucket.s3.amazonaws.com/final/a.jpg") {
		t.Fatalf("url = %q", link.URL)
	}
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		err  error
		want assetstore.Cause
	}{
		{err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: assetstore.CauseAuth},
		{err: &smithy.GenericAPIError{Code: "SlowDown"}, want: assetstore.CauseTransport},
		{err: &smithy.GenericAPIError{Code: "NoSuchKey"}, want: assetstore.CauseNotFound},
		{err: &smithy.GenericAPIError{Code: "InvalidArgument"}, want: assetstore.CauseOther},
		{err: errors.New("dial tcp: connection refused"), want: assetstore.CauseTransport},
	}
	for _, tc := range tests {
		if got := assetstore.Classify(classify("upload", "/a.jpg", tc.err)); got != tc.want {
			t.Fatalf("classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
