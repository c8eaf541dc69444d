package staging

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

// Renderer produces rendered images.
type Renderer interface {
	Render(ctx context.Context, req vsai.RenderRequest) (*vsai.RenderResult, error)
}

// Downloader fetches a rendered asset.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Input is a job submission.
type Input struct {
	ImageBase64 string
	RoomType    string
	Style       string
}

// Result is a previewed job. Job.PreviewURL is the direct link to the stored
// watermarked preview.
type Result struct {
	Job      domain.StagingJob
	RenderID string
}

// Service drives a submission to the previewed state.
type Service struct {
	store    *assetstore.Store
	renderer Renderer
	download Downloader
	ids      *jobs.IDGenerator
	logger   *infra.Logger
}

// NewService wires the staging flow. A nil id generator uses the default.
func NewService(store *assetstore.Store, renderer Renderer, download Downloader, ids *jobs.IDGenerator, logger *infra.Logger) *Service {
	if ids == nil {
		ids = jobs.NewIDGenerator()
	}
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Service{store: store, renderer: renderer, download: download, ids: ids, logger: logger}
}

// Stage validates the submission, stores the original, renders a
// watermarked preview from it and stores that too. Every step is terminal on
// failure; nothing already written is cleaned up.
func (s *Service) Stage(ctx context.Context, in Input) (*Result, error) {
	roomType := strings.TrimSpace(in.RoomType)
	style := strings.TrimSpace(in.Style)
	if strings.TrimSpace(in.ImageBase64) == "" || roomType == "" || style == "" {
		return nil, domain.Invalid("Missing required fields")
	}
	image, err := DecodeImagePayload(in.ImageBase64)
	if err != nil {
		return nil, domain.Invalid("Invalid image payload")
	}

	job := domain.StagingJob{
		ID:       s.ids.NewJobID(),
		RoomType: roomType,
		Style:    style,
		Status:   domain.JobStatusSubmitted,
	}
	log := s.logger.With().Str("job_id", job.ID).Logger()

	job.OriginalPath, err = s.store.Upload(ctx, jobs.OriginalPath(job.ID), image, assetstore.UploadOptions{
		Mode:       assetstore.WriteModeAdd,
		Autorename: true,
	})
	if err != nil {
		return nil, s.fail(&log, "upload original", err)
	}
	job.OriginalURL, err = s.store.EnsureSharedLink(ctx, job.OriginalPath)
	if err != nil {
		return nil, s.fail(&log, "share original", err)
	}

	render, err := s.renderer.Render(ctx, vsai.RenderRequest{
		ImageURL:          job.OriginalURL,
		RoomType:          roomType,
		Style:             style,
		Watermark:         true,
		WaitForCompletion: true,
	})
	if err != nil {
		return nil, s.fail(&log, "render preview", err)
	}

	preview, _, err := s.download.Fetch(ctx, render.ResultURL)
	if err != nil {
		return nil, s.fail(&log, "download preview", err)
	}
	job.PreviewPath, err = s.store.Upload(ctx, jobs.PreviewPath(job.ID), preview, assetstore.UploadOptions{
		Mode: assetstore.WriteModeOverwrite,
		Mute: true,
	})
	if err != nil {
		return nil, s.fail(&log, "upload preview", err)
	}
	job.PreviewURL, err = s.store.EnsureSharedLink(ctx, job.PreviewPath)
	if err != nil {
		return nil, s.fail(&log, "share preview", err)
	}

	job.Status = domain.JobStatusPreviewed
	log.Info().
		Str("original_path", job.OriginalPath).
		Str("preview_path", job.PreviewPath).
		Str("render_id", render.RenderID).
		Msg("staging: preview ready")
	return &Result{Job: job, RenderID: render.RenderID}, nil
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
	event.Msg("staging: job failed")
	return fmt.Errorf("staging: %s: %w", step, err)
}
