package assetstore

import (
	"context"
	"errors"
	"strings"

	"roomstaging/internal/infra"
)

// Tier names the access level a gated link ended up with.
type Tier string

const (
	TierPublicRaw Tier = "public_raw"
	TierPassword  Tier = "password"
	TierTemporary Tier = "temporary"
)

// ShareLink is the outcome of CreateGatedLink. FallbackReason is set when the
// requested tier was unavailable and a weaker one was issued instead.
type ShareLink struct {
	Path           string
	Tier           Tier
	URL            string
	FallbackReason Cause
	FallbackErr    error
}

// GrantResult reports a recipient grant. Failures are recorded, not returned.
type GrantResult struct {
	Email   string
	Granted bool
	Err     error
}

// Store wraps a Provider with the idempotent operations the staging flows
// rely on.
type Store struct {
	provider Provider
	logger   *infra.Logger
}

// New constructs a Store. A nil logger discards output.
func New(provider Provider, logger *infra.Logger) *Store {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Store{provider: provider, logger: logger}
}

// Provider exposes the underlying backend.
func (s *Store) Provider() Provider {
	return s.provider
}

// Upload writes data and returns the stored path.
func (s *Store) Upload(ctx context.Context, path string, data []byte, opts UploadOptions) (string, error) {
	stored, err := s.provider.Upload(ctx, path, data, opts)
	if err != nil {
		return "", wrap("upload", path, err)
	}
	if stored == "" {
		stored = path
	}
	s.logger.Debug().Str("path", stored).Int("bytes", len(data)).Str("mode", string(opts.Mode)).Msg("assetstore: uploaded")
	return stored, nil
}

// EnsureSharedLink returns a direct-content link for path, creating one if
// needed. When the link already exists the first listed link is reused, so
// repeated calls yield the same URL.
func (s *Store) EnsureSharedLink(ctx context.Context, path string) (string, error) {
	link, err := s.provider.CreateSharedLink(ctx, path, nil)
	if err == nil {
		return s.normalize(link.URL), nil
	}
	if Classify(err) != CauseConflict {
		return "", wrap("create_shared_link", path, err)
	}

	links, listErr := s.provider.ListSharedLinks(ctx, path, true)
	if listErr != nil {
		return "", wrap("list_shared_links", path, listErr)
	}
	for _, l := range links {
		if l.URL != "" {
			return s.normalize(l.URL), nil
		}
	}
	return "", wrap("create_shared_link", path, err)
}

// EnsureFolder creates folder if it does not exist yet. An existing folder is
// success.
func (s *Store) EnsureFolder(ctx context.Context, folder string) error {
	if strings.Trim(folder, "/") == "" {
		return nil
	}
	err := s.provider.CreateFolder(ctx, folder)
	if err == nil {
		return nil
	}
	if Classify(err) == CauseConflict {
		s.logger.Debug().Str("folder", folder).Msg("assetstore: folder already exists")
		return nil
	}
	return wrap("create_folder", folder, err)
}

// CreateGatedLink shares path behind a password. An existing public or
// password link is reused. If the backend cannot issue password links, or no
// usable link can be listed, it degrades to a temporary link and records why.
// Auth, transport and not-found failures are returned as-is.
func (s *Store) CreateGatedLink(ctx context.Context, path, password string) (ShareLink, error) {
	link, err := s.provider.CreateSharedLink(ctx, path, &LinkSettings{
		Visibility: VisibilityPassword,
		Password:   password,
	})
	if err == nil {
		if share, ok := s.shareLink(path, link); ok {
			return share, nil
		}
		err = &Error{Op: "create_shared_link", Path: path, Cause: CauseOther, Summary: "restricted visibility " + string(link.Visibility)}
	}

	cause := Classify(err)
	switch cause {
	case CauseConflict:
		links, listErr := s.provider.ListSharedLinks(ctx, path, true)
		if listErr != nil {
			return ShareLink{}, errors.Join(wrap("create_shared_link", path, err), wrap("list_shared_links", path, listErr))
		}
		for _, l := range links {
			if l.URL == "" {
				continue
			}
			if share, ok := s.shareLink(path, l); ok {
				return share, nil
			}
			s.logger.Debug().Str("path", path).Str("visibility", string(l.Visibility)).Msg("assetstore: skipping restricted link")
		}
	case CauseOther:
	default:
		return ShareLink{}, wrap("create_shared_link", path, err)
	}

	s.logger.Warn().Err(err).Str("path", path).Str("cause", string(cause)).Msg("assetstore: gated link unavailable, issuing temporary link")
	tmp, tmpErr := s.provider.TemporaryLink(ctx, path)
	if tmpErr != nil {
		return ShareLink{}, errors.Join(wrap("create_shared_link", path, err), wrap("temporary_link", path, tmpErr))
	}
	return ShareLink{
		Path:           path,
		Tier:           TierTemporary,
		URL:            tmp,
		FallbackReason: cause,
		FallbackErr:    err,
	}, nil
}

// GrantRecipient gives email viewer access to path. It never fails the
// caller; the outcome is reported in the result.
func (s *Store) GrantRecipient(ctx context.Context, path, email, message string) GrantResult {
	result := GrantResult{Email: email}
	if err := s.provider.AddRecipient(ctx, path, email, message); err != nil {
		result.Err = wrap("add_recipient", path, err)
		s.logger.Warn().Err(result.Err).Str("path", path).Msg("assetstore: recipient grant failed")
		return result
	}
	result.Granted = true
	return result
}

// shareLink maps a provider link onto a tier. Links limited to a team or a
// shared folder cannot be opened by the buyer and are reported as unusable.
func (s *Store) shareLink(path string, link Link) (ShareLink, bool) {
	switch link.Visibility {
	case VisibilityPublic:
		return ShareLink{Path: path, Tier: TierPublicRaw, URL: s.normalize(link.URL)}, true
	case VisibilityPassword:
		return ShareLink{Path: path, Tier: TierPassword, URL: link.URL}, true
	default:
		return ShareLink{}, false
	}
}

func (s *Store) normalize(url string) string {
	if n, ok := s.provider.(LinkNormalizer); ok {
		return n.NormalizeLink(url)
	}
	return NormalizeLinkFormat(url)
}
