package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"roomstaging/internal/domain"
	"roomstaging/internal/staging"
)

// Submissions carry the photo inline; 40 MiB leaves room for base64 overhead
// on a 25 MiB image.
const maxStageBody = 40 << 20

type stageRequest struct {
	ImageBase64 json.RawMessage `json:"image_base64"`
	RoomType    string          `json:"room_type"`
	Style       string          `json:"style"`
}

type stageResponse struct {
	PreviewURL   string `json:"preview_url"`
	JobID        string `json:"job_id"`
	OriginalPath string `json:"dropbox_path"`
	OriginalURL  string `json:"image_url"`
	RoomType     string `json:"room_type"`
	Style        string `json:"style"`
	PreviewPath  string `json:"preview_path"`
	RenderID     string `json:"render_id,omitempty"`
}

// Stage accepts a photo and answers with a watermarked preview plus the
// metadata the client must send back at checkout.
func (a *App) Stage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStageBody)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var image string
	if len(req.ImageBase64) > 0 && string(req.ImageBase64) != "null" {
		if err := json.Unmarshal(req.ImageBase64, &image); err != nil {
			a.error(w, http.StatusBadRequest, "Invalid image payload")
			return
		}
	}

	res, err := a.Staging.Stage(r.Context(), staging.Input{
		ImageBase64: image,
		RoomType:    req.RoomType,
		Style:       req.Style,
	})
	if err != nil {
		var vErr *domain.ValidationError
		switch {
		case errors.As(err, &vErr):
			a.error(w, http.StatusBadRequest, vErr.Message)
		case errors.Is(err, domain.ErrRenderFailed):
			a.error(w, http.StatusInternalServerError, "Staging failed")
		default:
			a.error(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	job := res.Job
	a.json(w, http.StatusOK, stageResponse{
		PreviewURL:   job.PreviewURL,
		JobID:        job.ID,
		OriginalPath: job.OriginalPath,
		OriginalURL:  job.OriginalURL,
		RoomType:     job.RoomType,
		Style:        job.Style,
		PreviewPath:  job.PreviewPath,
		RenderID:     res.RenderID,
	})
}
