package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"roomstaging/internal/domain"
	"roomstaging/internal/providers/vsai"
)

const fallbackUpstreamMessage = "VSAI request failed"

type finalizeRequest struct {
	RenderID string `json:"render_id"`
	JobID    string `json:"job_id"`
}

type finalizeResponse struct {
	JobID       string `json:"job_id"`
	RenderID    string `json:"render_id"`
	DownloadURL string `json:"download_url"`
	StoredPath  string `json:"download_dropbox_path"`
	ResultURL   string `json:"vsai_result_url"`
}

// Finalize turns an existing render into an unwatermarked download.
func (a *App) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.RenderID) == "" || strings.TrimSpace(req.JobID) == "" {
		a.error(w, http.StatusBadRequest, "Missing render_id or job_id")
		return
	}
	if !a.Renders.HasCredentials() {
		a.error(w, http.StatusInternalServerError, "Missing Virtual Staging API key")
		return
	}

	out, err := a.Fulfillment.Finalize(r.Context(), req.RenderID, req.JobID)
	if err != nil {
		var vErr *domain.ValidationError
		var renderErr *domain.RenderError
		switch {
		case errors.As(err, &vErr):
			a.error(w, http.StatusBadRequest, vErr.Message)
		case errors.As(err, &renderErr) && renderErr.Err == nil:
			status := renderErr.Status
			if status < 400 {
				status = http.StatusInternalServerError
			}
			a.json(w, status, normalizeErrorPayload(renderErr.Payload, fallbackUpstreamMessage))
		default:
			a.error(w, http.StatusInternalServerError, "Failed to finalize render")
		}
		return
	}

	a.json(w, http.StatusOK, finalizeResponse{
		JobID:       out.JobID,
		RenderID:    out.RenderID,
		DownloadURL: out.DownloadURL,
		StoredPath:  out.StoredPath,
		ResultURL:   out.ResultURL,
	})
}

// Ping checks the rendering service credentials.
func (a *App) Ping(w http.ResponseWriter, r *http.Request) {
	a.passThrough(w, r, http.MethodGet, "/ping", nil, nil)
}

// Render looks up a render by id.
func (a *App) Render(w http.ResponseWriter, r *http.Request) {
	renderID := renderIDParam(r)
	if renderID == "" && a.Renders.HasCredentials() {
		a.error(w, http.StatusBadRequest, "Missing render_id")
		return
	}
	a.passThrough(w, r, http.MethodGet, "/render", url.Values{"render_id": {renderID}}, nil)
}

// RenderCreate forwards a render request as-is.
func (a *App) RenderCreate(w http.ResponseWriter, r *http.Request) {
	a.passThrough(w, r, http.MethodPost, "/render/create", nil, objectBody(r))
}

// RenderCreateVariation forwards a variation request as-is.
func (a *App) RenderCreateVariation(w http.ResponseWriter, r *http.Request) {
	renderID := renderIDParam(r)
	if renderID == "" && a.Renders.HasCredentials() {
		a.error(w, http.StatusBadRequest, "Missing render_id")
		return
	}
	a.passThrough(w, r, http.MethodPost, "/render/create-variation", url.Values{"render_id": {renderID}}, objectBody(r))
}

func (a *App) passThrough(w http.ResponseWriter, r *http.Request, method, path string, query url.Values, body any) {
	if !a.Renders.HasCredentials() {
		a.error(w, http.StatusInternalServerError, "Missing Virtual Staging API key")
		return
	}
	resp, err := a.Renders.Do(r.Context(), method, path, query, body)
	if err != nil {
		if errors.Is(err, vsai.ErrMissingAPIKey) {
			a.error(w, http.StatusInternalServerError, "Missing Virtual Staging API key")
			return
		}
		a.Logger.Error().Err(err).Str("path", path).Msg("vsai: pass-through failed")
		a.error(w, http.StatusBadGateway, "Failed to contact Virtual Staging API")
		return
	}
	if !resp.OK {
		a.json(w, resp.Status, normalizeErrorPayload(resp.Data, fallbackUpstreamMessage))
		return
	}
	if len(resp.Data) == 0 {
		a.json(w, resp.Status, map[string]any{})
		return
	}
	a.json(w, resp.Status, resp.Data)
}

func renderIDParam(r *http.Request) string {
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("render_id")); id != "" {
		return id
	}
	return strings.TrimSpace(q.Get("renderId"))
}

// objectBody returns the request body when it is a JSON object and {}
// otherwise.
func objectBody(r *http.Request) json.RawMessage {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	raw = bytes.TrimSpace(raw)
	if err != nil || len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}

// normalizeErrorPayload passes JSON objects and arrays through and wraps
// anything else under an error message.
func normalizeErrorPayload(data json.RawMessage, fallback string) any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return map[string]string{"error": fallback}
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return json.RawMessage(trimmed)
	}
	return map[string]any{"error": fallback, "details": json.RawMessage(trimmed)}
}
