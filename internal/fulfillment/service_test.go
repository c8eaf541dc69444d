package fulfillment

import (
	"context"
	"errors"
	"testing"

	"roomstaging/internal/assetstore"
	"roomstaging/internal/assetstore/assetstoretest"
	"roomstaging/internal/domain"
	"roomstaging/internal/providers/vsai"
)

type stubRenderer struct {
	renders    []vsai.RenderRequest
	variations []string
	watermarks []bool
	err        error
}

func (s *stubRenderer) Render(_ context.Context, req vsai.RenderRequest) (*vsai.RenderResult, error) {
	s.renders = append(s.renders, req)
	if s.err != nil {
		return nil, s.err
	}
	return &vsai.RenderResult{ResultURL: "https://cdn.vsai/final.jpg", RenderID: "r-final"}, nil
}

func (s *stubRenderer) CreateVariation(_ context.Context, renderID string, watermark bool) (*vsai.RenderResult, error) {
	s.variations = append(s.variations, renderID)
	s.watermarks = append(s.watermarks, watermark)
	if s.err != nil {
		return nil, s.err
	}
	return &vsai.RenderResult{ResultURL: "https://cdn.vsai/variation.jpg", RenderID: "r-var"}, nil
}

type stubDownloader struct {
	calls int
	err   error
}

func (s *stubDownloader) Fetch(_ context.Context, url string) ([]byte, string, error) {
	s.calls++
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte("final:" + url), "image/jpeg", nil
}

func newTestService() (*Service, *assetstoretest.Fake, *stubRenderer, *stubDownloader) {
	fake := assetstoretest.New()
	renderer := &stubRenderer{}
	download := &stubDownloader{}
	return NewService(assetstore.New(fake, nil), renderer, download, nil), fake, renderer, download
}

func TestFulfillWithoutEmailSkipsGrant(t *testing.T) {
	svc, fake, renderer, _ := newTestService()

	res, err := svc.Fulfill(context.Background(), Order{
		SessionID: "cs_1",
		Metadata:  domain.JobMetadata{JobID: "job_123", OriginalURL: "https://x/original.jpg"},
	})
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if res.JobID != "job_123" || res.FinalPath != "/final/renders/job_123/original.jpg" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.CustomerEmail != "" || res.Grant != nil {
		t.Fatalf("no email means no grant: %+v", res)
	}
	if fake.Count("add_recipient") != 0 {
		t.Fatalf("recipient grant attempted without an email")
	}

	req := renderer.renders[0]
	if req.Watermark || !req.WaitForCompletion || req.ImageURL != "https://x/original.jpg" {
		t.Fatalf("final render must be unwatermarked from the original: %+v", req)
	}
	if data, ok := fake.File(res.FinalPath); !ok || string(data) != "final:https://cdn.vsai/final.jpg" {
		t.Fatalf("final asset = %q", data)
	}
	if res.Link.Tier != assetstore.TierPassword || res.Link.FallbackReason != "" {
		t.Fatalf("expected password tier, got %+v", res.Link)
	}
	for _, c := range fake.Calls() {
		if c.Op == "create_shared_link" && (c.Settings == nil || c.Settings.Password != "job_123") {
			t.Fatalf("gated link password = %+v", c.Settings)
		}
		if c.Op == "upload" && c.Opts.Mode != assetstore.WriteModeOverwrite {
			t.Fatalf("final upload must overwrite: %+v", c.Opts)
		}
	}
}

func TestFulfillFolderConflictStillUploads(t *testing.T) {
	svc, fake, _, _ := newTestService()
	fake.SeedFolder("/final")

	res, err := svc.Fulfill(context.Background(), Order{
		SessionID: "cs_2",
		Metadata: domain.JobMetadata{
			JobID:        "job_9",
			OriginalPath: "/uploads/job_9.jpg",
			OriginalURL:  "https://x/job_9.jpg",
		},
	})
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if res.FinalPath != "/final/job_9.jpg" {
		t.Fatalf("final path = %q", res.FinalPath)
	}
	if fake.Count("create_folder") != 1 || fake.Count("upload") != 1 {
		t.Fatalf("expected folder attempt then upload, calls=%+v", fake.Calls())
	}
}

func TestFulfillRedeliveryReusesLink(t *testing.T) {
	svc, _, _, _ := newTestService()
	order := Order{SessionID: "cs_3", Metadata: domain.JobMetadata{JobID: "job_3", OriginalURL: "https://x/3.jpg"}}

	first, err := svc.Fulfill(context.Background(), order)
	if err != nil {
		t.Fatalf("first Fulfill: %v", err)
	}
	second, err := svc.Fulfill(context.Background(), order)
	if err != nil {
		t.Fatalf("redelivered Fulfill: %v", err)
	}
	if first.Link.URL != second.Link.URL || second.Link.Tier != assetstore.TierPassword {
		t.Fatalf("redelivery produced a different link: %+v vs %+v", first.Link, second.Link)
	}
}

func TestFulfillGrantsRecipient(t *testing.T) {
	svc, fake, _, _ := newTestService()

	res, err := svc.Fulfill(context.Background(), Order{
		SessionID:     "cs_4",
		Metadata:      domain.JobMetadata{JobID: "job_4", OriginalURL: "https://x/4.jpg"},
		CustomerEmail: " payer@example.com ",
	})
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if res.CustomerEmail != "payer@example.com" || res.Grant == nil || !res.Grant.Granted {
		t.Fatalf("unexpected grant %+v", res.Grant)
	}
	calls := fake.Calls()
	last := calls[len(calls)-1]
	if last.Op != "add_recipient" || last.Message != "Here is your virtually staged image for job job_4." {
		t.Fatalf("unexpected grant call %+v", last)
	}
}

func TestFulfillGrantFailureIsNotFatal(t *testing.T) {
	svc, fake, _, _ := newTestService()
	fake.Fail("add_recipient", assetstore.CauseAuth)

	res, err := svc.Fulfill(context.Background(), Order{
		SessionID:     "cs_5",
		Metadata:      domain.JobMetadata{JobID: "job_5", OriginalURL: "https://x/5.jpg"},
		CustomerEmail: "payer@example.com",
	})
	if err != nil {
		t.Fatalf("grant failure must not fail fulfillment: %v", err)
	}
	if res.Grant == nil || res.Grant.Granted || res.Grant.Err == nil {
		t.Fatalf("grant failure not reported: %+v", res.Grant)
	}
	if res.Link.URL == "" {
		t.Fatalf("gated link missing")
	}
}

func TestFulfillLinkFallbacks(t *testing.T) {
	t.Run("other cause degrades to temporary", func(t *testing.T) {
		svc, fake, _, _ := newTestService()
		fake.Fail("create_shared_link", assetstore.CauseOther)

		res, err := svc.Fulfill(context.Background(), Order{SessionID: "cs_6", Metadata: domain.JobMetadata{JobID: "job_6", OriginalURL: "https://x/6.jpg"}})
		if err != nil {
			t.Fatalf("Fulfill: %v", err)
		}
		if res.Link.Tier != assetstore.TierTemporary || res.Link.FallbackReason != assetstore.CauseOther {
			t.Fatalf("expected temporary fallback, got %+v", res.Link)
		}
		if res.Link.URL != "https://fake.store/tmp/final/renders/job_6/original.jpg" {
			t.Fatalf("temporary url = %q", res.Link.URL)
		}
	})

	t.Run("existing public link is reused raw", func(t *testing.T) {
		svc, fake, _, _ := newTestService()
		fake.SeedLink("/final/renders/job_7/original.jpg", assetstore.Link{
			URL:        "https://fake.store/s/final/renders/job_7/original.jpg?dl=0",
			Visibility: assetstore.VisibilityPublic,
		})

		res, err := svc.Fulfill(context.Background(), Order{SessionID: "cs_7", Metadata: domain.JobMetadata{JobID: "job_7", OriginalURL: "https://x/7.jpg"}})
		if err != nil {
			t.Fatalf("Fulfill: %v", err)
		}
		if res.Link.Tier != assetstore.TierPublicRaw || res.Link.URL != "https://fake.store/s/final/renders/job_7/original.jpg?raw=1" {
			t.Fatalf("unexpected link %+v", res.Link)
		}
	})

	t.Run("auth failure surfaces", func(t *testing.T) {
		svc, fake, _, _ := newTestService()
		fake.Fail("create_shared_link", assetstore.CauseAuth)

		_, err := svc.Fulfill(context.Background(), Order{SessionID: "cs_8", Metadata: domain.JobMetadata{JobID: "job_8", OriginalURL: "https://x/8.jpg"}})
		if assetstore.Classify(err) != assetstore.CauseAuth || fake.Count("temporary_link") != 0 {
			t.Fatalf("expected auth failure without fallback, got %v", err)
		}
	})
}

func TestFulfillSessionPasswordWithoutJobID(t *testing.T) {
	svc, fake, _, _ := newTestService()

	_, err := svc.Fulfill(context.Background(), Order{
		SessionID: "cs_pw",
		Metadata:  domain.JobMetadata{OriginalPath: "/uploads/legacy.jpg", OriginalURL: "https://x/legacy.jpg"},
	})
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	for _, c := range fake.Calls() {
		if c.Op == "create_shared_link" && c.Settings.Password != "cs_pw" {
			t.Fatalf("password = %q, want session id", c.Settings.Password)
		}
	}
}

func TestFulfillRejectsIncompleteMetadata(t *testing.T) {
	svc, fake, renderer, _ := newTestService()

	cases := map[string]domain.JobMetadata{
		"no url":          {JobID: "job_1", OriginalPath: "/renders/job_1/original.jpg"},
		"no path or id":   {OriginalURL: "https://x/1.jpg"},
		"unknown version": {Version: "2", JobID: "job_1", OriginalURL: "https://x/1.jpg"},
	}
	for name, meta := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Fulfill(context.Background(), Order{SessionID: "cs", Metadata: meta})
			if !errors.Is(err, domain.ErrMissingMetadata) {
				t.Fatalf("expected ErrMissingMetadata, got %v", err)
			}
		})
	}
	if len(renderer.renders) != 0 || len(fake.Calls()) != 0 {
		t.Fatalf("incomplete metadata reached collaborators")
	}
}

func TestFulfillRenderAndDownloadFailures(t *testing.T) {
	svc, fake, renderer, download := newTestService()
	renderer.err = &domain.RenderError{Status: 200, Reason: "missing result_image_url"}

	_, err := svc.Fulfill(context.Background(), Order{SessionID: "cs", Metadata: domain.JobMetadata{JobID: "job_1", OriginalURL: "https://x/1.jpg"}})
	if !errors.Is(err, domain.ErrFulfillmentFailed) || !errors.Is(err, domain.ErrRenderFailed) {
		t.Fatalf("expected fulfillment failure, got %v", err)
	}
	if download.calls != 0 || len(fake.Calls()) != 0 {
		t.Fatalf("nothing should run after a failed render")
	}

	renderer.err = nil
	download.err = &domain.DownloadError{URL: "https://cdn.vsai/final.jpg", Status: 404}
	_, err = svc.Fulfill(context.Background(), Order{SessionID: "cs", Metadata: domain.JobMetadata{JobID: "job_1", OriginalURL: "https://x/1.jpg"}})
	if !errors.Is(err, domain.ErrDownloadFailed) || len(fake.Calls()) != 0 {
		t.Fatalf("expected download failure before any store call, got %v", err)
	}
}

func TestFinalize(t *testing.T) {
	svc, fake, renderer, _ := newTestService()

	out, err := svc.Finalize(context.Background(), "r-1", "job_1")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if renderer.variations[0] != "r-1" || renderer.watermarks[0] {
		t.Fatalf("variation must be unwatermarked: %v %v", renderer.variations, renderer.watermarks)
	}
	if out.RenderID != "r-var" || out.StoredPath != "/renders/job_1/final.jpg" || out.ResultURL != "https://cdn.vsai/variation.jpg" {
		t.Fatalf("unexpected finalize result %+v", out)
	}
	if out.DownloadURL != "https://fake.store/s/renders/job_1/final.jpg?raw=1" {
		t.Fatalf("download url = %q", out.DownloadURL)
	}
	upload := fake.Calls()[0]
	if upload.Opts.Mode != assetstore.WriteModeOverwrite || !upload.Opts.Mute {
		t.Fatalf("variation upload options = %+v", upload.Opts)
	}

	if _, err := svc.Finalize(context.Background(), "", "job_1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
