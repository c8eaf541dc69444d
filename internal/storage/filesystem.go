package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"roomstaging/internal/assetstore"
)

const maxRenameAttempts = 100

// FileStore persists assets onto the local filesystem and serves them under
// baseURL. It is intended for development and test environments where a
// hosted storage service is not available.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Handler serves stored files. Mount it under the path of baseURL.
func (s *FileStore) Handler() http.Handler {
	return http.FileServer(http.Dir(s.basePath))
}

// Upload writes data under the sanitized key. In add mode an existing file is
// a conflict unless autorename picks "name (n).ext".
func (s *FileStore) Upload(ctx context.Context, p string, data []byte, opts assetstore.UploadOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &assetstore.Error{Op: "upload", Path: p, Cause: assetstore.CauseTransport, Err: err}
	}
	key, err := sanitizeKey(p)
	if err != nil {
		return "", &assetstore.Error{Op: "upload", Path: p, Cause: assetstore.CauseOther, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(s.fullPath(key)), 0o755); err != nil {
		return "", &assetstore.Error{Op: "upload", Path: p, Cause: assetstore.CauseOther, Err: fmt.Errorf("storage: ensure directory: %w", err)}
	}

	if opts.Mode == assetstore.WriteModeOverwrite {
		if err := os.WriteFile(s.fullPath(key), data, 0o644); err != nil {
			return "", &assetstore.Error{Op: "upload", Path: p, Cause: assetstore.CauseOther, Err: fmt.Errorf("storage: write file: %w", err)}
		}
		return "/" + key, nil
	}

	candidate := key
	for attempt := 1; ; attempt++ {
		err := writeExclusive(s.fullPath(candidate), data)
		if err == nil {
			return "/" + candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", &assetstore.Error{Op: "upload", Path: p, Cause: assetstore.CauseOther, Err: fmt.Errorf("storage: write file: %w", err)}
		}
		if !opts.Autorename || attempt > maxRenameAttempts {
			return "", &assetstore.Error{Op: "upload", Path: p, Cause: assetstore.CauseConflict, Summary: "file exists", Err: err}
		}
		ext := path.Ext(key)
		candidate = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(key, ext), attempt, ext)
	}
}

// CreateSharedLink returns the public URL of an existing file. Password links
// are not supported locally.
func (s *FileStore) CreateSharedLink(_ context.Context, p string, settings *assetstore.LinkSettings) (assetstore.Link, error) {
	if settings != nil && settings.Visibility == assetstore.VisibilityPassword {
		return assetstore.Link{}, &assetstore.Error{Op: "create_shared_link", Path: p, Cause: assetstore.CauseOther, Summary: "password links unsupported"}
	}
	url, err := s.publicURL("create_shared_link", p)
	if err != nil {
		return assetstore.Link{}, err
	}
	return assetstore.Link{URL: url, Visibility: assetstore.VisibilityPublic}, nil
}

func (s *FileStore) ListSharedLinks(context.Context, string, bool) ([]assetstore.Link, error) {
	return nil, nil
}

// CreateFolder reports an existing folder as a conflict.
func (s *FileStore) CreateFolder(_ context.Context, p string) error {
	key, err := sanitizeKey(p)
	if err != nil {
		return &assetstore.Error{Op: "create_folder", Path: p, Cause: assetstore.CauseOther, Err: err}
	}
	full := s.fullPath(key)
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return &assetstore.Error{Op: "create_folder", Path: p, Cause: assetstore.CauseConflict, Summary: "folder exists"}
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return &assetstore.Error{Op: "create_folder", Path: p, Cause: assetstore.CauseOther, Err: err}
	}
	return nil
}

func (s *FileStore) TemporaryLink(_ context.Context, p string) (string, error) {
	return s.publicURL("temporary_link", p)
}

func (s *FileStore) AddRecipient(_ context.Context, p, _, _ string) error {
	return &assetstore.Error{Op: "add_recipient", Path: p, Cause: assetstore.CauseOther, Summary: "recipient grants unsupported"}
}

// NormalizeLink returns local URLs unchanged.
func (s *FileStore) NormalizeLink(url string) string {
	return url
}

func (s *FileStore) publicURL(op, p string) (string, error) {
	key, err := sanitizeKey(p)
	if err != nil {
		return "", &assetstore.Error{Op: op, Path: p, Cause: assetstore.CauseOther, Err: err}
	}
	if _, err := os.Stat(s.fullPath(key)); err != nil {
		cause := assetstore.CauseOther
		if errors.Is(err, fs.ErrNotExist) {
			cause = assetstore.CauseNotFound
		}
		return "", &assetstore.Error{Op: op, Path: p, Cause: cause, Err: err}
	}
	return s.baseURL + "/" + key, nil
}

func (s *FileStore) fullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

func writeExclusive(fullPath string, data []byte) error {
	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
