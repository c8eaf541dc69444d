package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"roomstaging/internal/assetstore"
	"roomstaging/internal/infra"
)

const maxRenameAttempts = 20

// Options configures the S3 backend.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	LinkTTL   time.Duration
	Logger    *infra.Logger
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store keeps assets in an S3 bucket and shares them through presigned URLs.
// S3 has neither password links nor per-user grants; those calls fail with
// CauseOther so callers degrade to a temporary link.
type Store struct {
	bucket  string
	ttl     time.Duration
	objects objectAPI
	presign presignAPI
	logger  *infra.Logger
}

// New loads the default AWS credential chain and builds the backend.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3store: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return newStore(opts.Bucket, opts.LinkTTL, client, s3.NewPresignClient(client), opts.Logger), nil
}

func newStore(bucket string, ttl time.Duration, objects objectAPI, presign presignAPI, logger *infra.Logger) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Store{bucket: bucket, ttl: ttl, objects: objects, presign: presign, logger: logger}
}

// Upload writes the object. Add mode refuses to replace an existing key and,
// with autorename, retries under "name (n).ext".
func (s *Store) Upload(ctx context.Context, p string, data []byte, opts assetstore.UploadOptions) (string, error) {
	key := objectKey(p)
	if opts.Mode == assetstore.WriteModeOverwrite {
		if err := s.put(ctx, key, data, false); err != nil {
			return "", classify("upload", p, err)
		}
		return "/" + key, nil
	}

	candidate := key
	for attempt := 1; ; attempt++ {
		err := s.put(ctx, candidate, data, true)
		if err == nil {
			return "/" + candidate, nil
		}
		classified := classify("upload", p, err)
		if assetstore.Classify(classified) != assetstore.CauseConflict || !opts.Autorename || attempt > maxRenameAttempts {
			return "", classified
		}
		ext := path.Ext(key)
		candidate = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(key, ext), attempt, ext)
		s.logger.Debug().Str("key", key).Str("candidate", candidate).Msg("s3store: key exists, renaming")
	}
}

func (s *Store) put(ctx context.Context, key string, data []byte, createOnly bool) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if createOnly {
		input.IfNoneMatch = aws.String("*")
	}
	_, err := s.objects.PutObject(ctx, input)
	return err
}

// CreateSharedLink presigns a GET for an existing object. Password
// restricted links are not available on S3.
func (s *Store) CreateSharedLink(ctx context.Context, p string, settings *assetstore.LinkSettings) (assetstore.Link, error) {
	if settings != nil && settings.Visibility == assetstore.VisibilityPassword {
		return assetstore.Link{}, &assetstore.Error{Op: "create_shared_link", Path: p, Cause: assetstore.CauseOther, Summary: "password links unsupported"}
	}
	key := objectKey(p)
	if _, err := s.objects.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return assetstore.Link{}, classify("create_shared_link", p, err)
	}
	url, err := s.presignGet(ctx, key)
	if err != nil {
		return assetstore.Link{}, classify("create_shared_link", p, err)
	}
	return assetstore.Link{URL: url, Visibility: assetstore.VisibilityPublic}, nil
}

// ListSharedLinks always reports no links; presigned URLs are not stored.
func (s *Store) ListSharedLinks(context.Context, string, bool) ([]assetstore.Link, error) {
	return nil, nil
}

// CreateFolder is a no-op. Keys carry their own prefixes.
func (s *Store) CreateFolder(context.Context, string) error {
	return nil
}

func (s *Store) TemporaryLink(ctx context.Context, p string) (string, error) {
	url, err := s.presignGet(ctx, objectKey(p))
	if err != nil {
		return "", classify("temporary_link", p, err)
	}
	return url, nil
}

func (s *Store) AddRecipient(_ context.Context, p, _, _ string) error {
	return &assetstore.Error{Op: "add_recipient", Path: p, Cause: assetstore.CauseOther, Summary: "recipient grants unsupported"}
}

// NormalizeLink leaves presigned URLs untouched; rewriting the query would
// invalidate the signature.
func (s *Store) NormalizeLink(url string) string {
	return url
}

func (s *Store) presignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func objectKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func classify(op, p string, err error) error {
	cause := assetstore.CauseTransport
	summary := ""

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		summary = apiErr.ErrorCode()
		cause = codeCause(apiErr.ErrorCode())
	}
	var statusErr interface{ HTTPStatusCode() int }
	if cause == assetstore.CauseOther && errors.As(err, &statusErr) {
		cause = statusCause(statusErr.HTTPStatusCode())
	}
	return &assetstore.Error{Op: op, Path: p, Cause: cause, Summary: summary, Err: fmt.Errorf("s3store: %w", err)}
}

func codeCause(code string) assetstore.Cause {
	switch code {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return assetstore.CauseConflict
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return assetstore.CauseNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "Forbidden":
		return assetstore.CauseAuth
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
		return assetstore.CauseTransport
	}
	return assetstore.CauseOther
}

func statusCause(status int) assetstore.Cause {
	switch {
	case status == 401 || status == 403:
		return assetstore.CauseAuth
	case status == 404:
		return assetstore.CauseNotFound
	case status == 409 || status == 412:
		return assetstore.CauseConflict
	case status == 429 || status >= 500:
		return assetstore.CauseTransport
	}
	return assetstore.CauseOther
}
