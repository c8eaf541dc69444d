package assetstore

import (
	"context"
	"errors"
	"fmt"

	"roomstaging/internal/domain"
)

// Cause is the closed set of reasons a provider call can fail. Fallback
// decisions switch on it instead of provider-specific error text.
type Cause string

const (
	CauseConflict  Cause = "conflict"
	CauseAuth      Cause = "auth"
	CauseTransport Cause = "transport"
	CauseNotFound  Cause = "not_found"
	CauseOther     Cause = "other"
)

// WriteMode selects what happens when an upload targets an existing path.
type WriteMode string

const (
	WriteModeAdd       WriteMode = "add"
	WriteModeOverwrite WriteMode = "overwrite"
)

// UploadOptions mirrors the provider upload flags.
type UploadOptions struct {
	Mode       WriteMode
	Autorename bool
	Mute       bool
}

// Visibility of a shared link as requested from, or reported by, the provider.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPassword Visibility = "password"

	// Restricted visibilities a backend may report for existing links.
	VisibilityTeamOnly         Visibility = "team_only"
	VisibilityTeamAndPassword  Visibility = "team_and_password"
	VisibilitySharedFolderOnly Visibility = "shared_folder_only"
)

// LinkSettings restricts a shared link at creation time.
type LinkSettings struct {
	Visibility Visibility
	Password   string
}

// Link is a shared link as returned by a provider.
type Link struct {
	URL        string
	Visibility Visibility
}

// Provider is the boundary to an object storage and sharing service. Every
// error it returns should be an *Error so callers can classify it.
type Provider interface {
	// Upload stores data at path and returns the path actually written, which
	// differs from path when autorename resolved a conflict.
	Upload(ctx context.Context, path string, data []byte, opts UploadOptions) (string, error)
	CreateSharedLink(ctx context.Context, path string, settings *LinkSettings) (Link, error)
	ListSharedLinks(ctx context.Context, path string, directOnly bool) ([]Link, error)
	CreateFolder(ctx context.Context, path string) error
	TemporaryLink(ctx context.Context, path string) (string, error)
	AddRecipient(ctx context.Context, path, email, message string) error
}

// LinkNormalizer is implemented by providers whose links must not be rewritten
// into the direct-content form, such as signed URLs.
type LinkNormalizer interface {
	NormalizeLink(url string) string
}

// Error is the classified failure of a provider operation.
type Error struct {
	Op      string
	Path    string
	Cause   Cause
	Summary string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("assetstore: %s %s: %s", e.Op, e.Path, e.Cause)
	if e.Summary != "" {
		msg += " (" + e.Summary + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{domain.ErrAssetUnavailable, domain.ErrUpstreamUnavailable}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Classify maps an error onto the closed cause set. Unclassified errors are
// CauseOther, except context expiry which is a transport failure.
func Classify(err error) Cause {
	if err == nil {
		return ""
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Cause
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CauseTransport
	}
	return CauseOther
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return err
	}
	return &Error{Op: op, Path: path, Cause: Classify(err), Err: err}
}
