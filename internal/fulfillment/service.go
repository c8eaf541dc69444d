// Package fulfillment delivers the unwatermarked asset once a job is paid.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"roomstaging/internal/assetstore"
	"roomstaging/internal/domain"
	"roomstaging/internal/infra"
	"roomstaging/internal/jobs"
	"roomstaging/internal/providers/vsai"
)

// Renderer produces final renders.
type Renderer interface {
	Render(ctx context.Context, req vsai.RenderRequest) (*vsai.RenderResult, error)
	CreateVariation(ctx context.Context, renderID string, watermark bool) (*vsai.RenderResult, error)
}

// Downloader fetches a rendered asset.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Order is a confirmed payment carrying the staging join key.
type Order struct {
	SessionID     string
	Metadata      domain.JobMetadata
	CustomerEmail string
}

// Result describes a delivered job. Grant is nil when no payer email was
// known.
type Result struct {
	JobID         string
	FinalPath     string
	Link          assetstore.ShareLink
	CustomerEmail string
	Grant         *assetstore.GrantResult
}

// Finalized is the outcome of finalizing an existing render.
type Finalized struct {
	JobID       string
	RenderID    string
	DownloadURL string
	StoredPath  string
	ResultURL   string
}

// Service runs fulfillment.
type Service struct {
	store    *assetstore.Store
	renderer Renderer
	download Downloader
	logger   *infra.Logger
}

// NewService wires the fulfillment flow.
func NewService(store *assetstore.Store, renderer Renderer, download Downloader, logger *infra.Logger) *Service {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Service{store: store, renderer: renderer, download: download, logger: logger}
}

// Fulfill renders the paid job without watermark from its original, stores
// it under the final path and shares it behind a password. It is safe to run
// again for the same order.
func (s *Service) Fulfill(ctx context.Context, order Order) (*Result, error) {
	meta := order.Metadata
	// Sessions carrying only job id and original URL still locate the
	// original through the path scheme.
	if meta.OriginalPath == "" && meta.JobID != "" {
		meta.OriginalPath = jobs.OriginalPath(meta.JobID)
	}
	if err := meta.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("session_id", order.SessionID).Msg("fulfillment: rejected session")
		return nil, err
	}

	job := meta.Job(domain.JobStatusPaid)
	log := s.logger.With().Str("job_id", job.ID).Str("session_id", order.SessionID).Logger()

	render, err := s.renderer.Render(ctx, vsai.RenderRequest{
		ImageURL:          meta.OriginalURL,
		RoomType:          meta.RoomType,
		Style:             meta.Style,
		Watermark:         false,
		WaitForCompletion: true,
	})
	if err != nil {
		return nil, s.fail(&log, "render final", fmt.Errorf("%w: %w", domain.ErrFulfillmentFailed, err))
	}

	data, _, err := s.download.Fetch(ctx, render.ResultURL)
	if err != nil {
		return nil, s.fail(&log, "download final", err)
	}

	job.FinalPath = jobs.FinalPath(meta.OriginalPath)
	if err := s.store.EnsureFolder(ctx, jobs.ParentFolder(job.FinalPath)); err != nil {
		return nil, s.fail(&log, "create final folder", err)
	}
	job.FinalPath, err = s.store.Upload(ctx, job.FinalPath, data, assetstore.UploadOptions{Mode: assetstore.WriteModeOverwrite})
	if err != nil {
		return nil, s.fail(&log, "upload final", err)
	}

	password := job.ID
	if password == "" {
		password = order.SessionID
	}
	link, err := s.store.CreateGatedLink(ctx, job.FinalPath, password)
	if err != nil {
		return nil, s.fail(&log, "share final", err)
	}

	result := &Result{
		JobID:         job.ID,
		FinalPath:     job.FinalPath,
		Link:          link,
		CustomerEmail: strings.TrimSpace(order.CustomerEmail),
	}
	if result.CustomerEmail != "" {
		grant := s.store.GrantRecipient(ctx, job.FinalPath, result.CustomerEmail, grantMessage(job.ID))
		result.Grant = &grant
	}

	log.Info().
		Str("final_path", job.FinalPath).
		Str("tier", string(link.Tier)).
		Str("fallback", string(link.FallbackReason)).
		Bool("recipient_granted", result.Grant != nil && result.Grant.Granted).
		Msg("fulfillment: delivered")
	return result, nil
}

// Finalize produces an unwatermarked variation of an existing render and
// stores it next to the job's preview with a direct link.
func (s *Service) Finalize(ctx context.Context, renderID, jobID string) (*Finalized, error) {
	renderID = strings.TrimSpace(renderID)
	jobID = strings.TrimSpace(jobID)
	if renderID == "" || jobID == "" {
		return nil, domain.Invalid("Missing render_id or job_id")
	}
	log := s.logger.With().Str("job_id", jobID).Str("render_id", renderID).Logger()

	render, err := s.renderer.CreateVariation(ctx, renderID, false)
	if err != nil {
		return nil, s.fail(&log, "render variation", err)
	}
	data, _, err := s.download.Fetch(ctx, render.ResultURL)
	if err != nil {
		return nil, s.fail(&log, "download variation", err)
	}
	stored, err := s.store.Upload(ctx, jobs.VariationFinalPath(jobID), data, assetstore.UploadOptions{
		Mode: assetstore.WriteModeOverwrite,
		Mute: true,
	})
	if err != nil {
		return nil, s.fail(&log, "upload variation", err)
	}
	url, err := s.store.EnsureSharedLink(ctx, stored)
	if err != nil {
		return nil, s.fail(&log, "share variation", err)
	}

	log.Info().Str("path", stored).Msg("fulfillment: render finalized")
	if render.RenderID != "" {
		renderID = render.RenderID
	}
	return &Finalized{
		JobID:       jobID,
		RenderID:    renderID,
		DownloadURL: url,
		StoredPath:  stored,
		ResultURL:   render.ResultURL,
	}, nil
}

func grantMessage(jobID string) string {
	if jobID == "" {
		return "Here is your virtually staged image."
	}
	return "Here is your virtually staged image for job " + jobID + "."
}

func (s *Service) fail(log *infra.Logger, step string, err error) error {
	event := log.Error().Err(err).Str("step", step)
	var renderErr *domain.RenderError
	if errors.As(err, &renderErr) && len(renderErr.Payload) > 0 {
		event = event.RawJSON("upstream_payload", renderErr.Payload)
	}
	if errors.Is(err, domain.ErrAssetUnavailable) {
		event = event.Str("cause", string(assetstore.Classify(err)))
	}
	event.Msg("fulfillment: failed")
	return fmt.Errorf("fulfillment: %s: %w", step, err)
}
