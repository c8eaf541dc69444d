package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"roomstaging/internal/domain"
	"roomstaging/internal/fulfillment"
)

const maxWebhookBody = 65536

type webhookResponse struct {
	Status        string  `json:"status"`
	JobID         string  `json:"job_id"`
	FinalPath     string  `json:"final_image_path"`
	SecureLink    string  `json:"secure_link"`
	CustomerEmail *string `json:"customer_email"`
}

// StripeWebhook authenticates a payment callback and, for completed
// checkouts, delivers the final image. The raw body is verified before any
// of it is trusted.
func (a *App) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(signature) == "" {
		a.error(w, http.StatusBadRequest, "Missing Stripe signature")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.Logger.Warn().Int64("limit", tooLarge.Limit).Msg("webhook: oversize payload")
			a.error(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		a.Logger.Warn().Err(err).Msg("webhook: unreadable body")
		a.error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event, err := a.Payments.VerifyEvent(payload, signature)
	if err != nil {
		if errors.Is(err, domain.ErrMissingMetadata) {
			a.Logger.Warn().Err(err).Msg("webhook: undecodable session")
			a.error(w, http.StatusBadRequest, "Missing staging metadata on session")
			return
		}
		a.Logger.Warn().Err(err).Msg("webhook: verification failed")
		a.error(w, http.StatusBadRequest, "Invalid Stripe signature")
		return
	}
	if !event.Completed {
		a.Logger.Debug().Str("event_id", event.ID).Str("type", event.Type).Msg("webhook: ignored event")
		a.json(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	res, err := a.Fulfillment.Fulfill(r.Context(), fulfillment.Order{
		SessionID:     event.SessionID,
		Metadata:      event.Metadata,
		CustomerEmail: event.CustomerEmail,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMissingMetadata):
			a.error(w, http.StatusBadRequest, "Missing staging metadata on session")
		case errors.Is(err, domain.ErrFulfillmentFailed):
			a.error(w, http.StatusInternalServerError, "Virtual staging failed")
		case errors.Is(err, domain.ErrDownloadFailed):
			a.error(w, http.StatusInternalServerError, "Unable to download final image")
		default:
			a.error(w, http.StatusInternalServerError, "Webhook processing failed")
		}
		return
	}

	resp := webhookResponse{
		Status:     "completed",
		JobID:      res.JobID,
		FinalPath:  res.FinalPath,
		SecureLink: res.Link.URL,
	}
	if res.CustomerEmail != "" {
		resp.CustomerEmail = &res.CustomerEmail
	}
	a.json(w, http.StatusOK, resp)
}
