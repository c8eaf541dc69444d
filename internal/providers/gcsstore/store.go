package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"roomstaging/internal/assetstore"
	"roomstaging/internal/infra"
)

const maxRenameAttempts = 20

// Options configures the Cloud Storage backend.
type Options struct {
	Bucket  string
	LinkTTL time.Duration
	Logger  *infra.Logger
}

type bucket interface {
	write(ctx context.Context, key string, data []byte, createOnly bool) error
	attrs(ctx context.Context, key string) error
	signedURL(key string, expires time.Time) (string, error)
}

// Store keeps assets in a Cloud Storage bucket and shares them through V4
// signed URLs. Password links and recipient grants are unsupported.
type Store struct {
	bucket bucket
	ttl    time.Duration
	now    func() time.Time
	logger *infra.Logger
}

// New opens a storage client with application default credentials.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("gcsstore: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcsstore: create client: %w", err)
	}
	return newStore(&gcsBucket{handle: client.Bucket(opts.Bucket)}, opts.LinkTTL, opts.Logger), nil
}

func newStore(b bucket, ttl time.Duration, logger *infra.Logger) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Store{bucket: b, ttl: ttl, now: time.Now, logger: logger}
}

// Upload writes the object. Add mode uses a DoesNotExist precondition and,
// with autorename, retries under "name (n).ext".
func (s *Store) Upload(ctx context.Context, p string, data []byte, opts assetstore.UploadOptions) (string, error) {
	key := objectKey(p)
	createOnly := opts.Mode != assetstore.WriteModeOverwrite
	candidate := key
	for attempt := 1; ; attempt++ {
		err := s.bucket.write(ctx, candidate, data, createOnly)
		if err == nil {
			return "/" + candidate, nil
		}
		classified := classify("upload", p, err)
		if !createOnly || !opts.Autorename || assetstore.Classify(classified) != assetstore.CauseConflict || attempt > maxRenameAttempts {
			return "", classified
		}
		ext := path.Ext(key)
		candidate = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(key, ext), attempt, ext)
		s.logger.Debug().Str("key", key).Str("candidate", candidate).Msg("gcsstore: object exists, renaming")
	}
}

func (s *Store) CreateSharedLink(ctx context.Context, p string, settings *assetstore.LinkSettings) (assetstore.Link, error) {
	if settings != nil && settings.Visibility == assetstore.VisibilityPassword {
		return assetstore.Link{}, &assetstore.Error{Op: "create_shared_link", Path: p, Cause: assetstore.CauseOther, Summary: "password links unsupported"}
	}
	key := objectKey(p)
	if err := s.bucket.attrs(ctx, key); err != nil {
		return assetstore.Link{}, classify("create_shared_link", p, err)
	}
	url, err := s.bucket.signedURL(key, s.now().Add(s.ttl))
	if err != nil {
		return assetstore.Link{}, classify("create_shared_link", p, err)
	}
	return assetstore.Link{URL: url, Visibility: assetstore.VisibilityPublic}, nil
}

func (s *Store) ListSharedLinks(context.Context, string, bool) ([]assetstore.Link, error) {
	return nil, nil
}

// CreateFolder is a no-op; object names carry their prefixes.
func (s *Store) CreateFolder(context.Context, string) error {
	return nil
}

func (s *Store) TemporaryLink(_ context.Context, p string) (string, error) {
	url, err := s.bucket.signedURL(objectKey(p), s.now().Add(s.ttl))
	if err != nil {
		return "", classify("temporary_link", p, err)
	}
	return url, nil
}

func (s *Store) AddRecipient(_ context.Context, p, _, _ string) error {
	return &assetstore.Error{Op: "add_recipient", Path: p, Cause: assetstore.CauseOther, Summary: "recipient grants unsupported"}
}

// NormalizeLink returns signed URLs unchanged.
func (s *Store) NormalizeLink(url string) string {
	return url
}

type gcsBucket struct {
	handle *storage.BucketHandle
}

func (b *gcsBucket) write(ctx context.Context, key string, data []byte, createOnly bool) error {
	obj := b.handle.Object(key)
	if createOnly {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	writer := obj.NewWriter(ctx)
	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (b *gcsBucket) attrs(ctx context.Context, key string) error {
	_, err := b.handle.Object(key).Attrs(ctx)
	return err
}

func (b *gcsBucket) signedURL(key string, expires time.Time) (string, error) {
	return b.handle.SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: expires,
	})
}

func objectKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func classify(op, p string, err error) error {
	cause := assetstore.CauseOther
	summary := ""

	var apiErr *googleapi.Error
	switch {
	case errors.Is(err, storage.ErrObjectNotExist), errors.Is(err, storage.ErrBucketNotExist):
		cause = assetstore.CauseNotFound
	case errors.As(err, &apiErr):
		summary = apiErr.Message
		switch {
		case apiErr.Code == http.StatusPreconditionFailed || apiErr.Code == http.StatusConflict:
			cause = assetstore.CauseConflict
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			cause = assetstore.CauseAuth
		case apiErr.Code == http.StatusNotFound:
			cause = assetstore.CauseNotFound
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			cause = assetstore.CauseTransport
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		cause = assetstore.CauseTransport
	}
	return &assetstore.Error{Op: op, Path: p, Cause: cause, Summary: summary, Err: fmt.Errorf("gcsstore: %w", err)}
}
