package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"roomstaging/internal/domain"
	"roomstaging/internal/payment"
)

type checkoutRequest struct {
	Amount        float64        `json:"amount"`
	Currency      string         `json:"currency"`
	Metadata      map[string]any `json:"metadata"`
	CustomerEmail string         `json:"customer_email"`
}

// Checkout opens a payment session for a previewed job.
func (a *App) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	out, err := a.Payments.CreateCheckout(r.Context(), payment.CheckoutRequest{
		Amount:        req.Amount,
		Currency:      req.Currency,
		Metadata:      req.Metadata,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			a.error(w, http.StatusBadRequest, vErr.Message)
			return
		}
		a.Logger.Error().Err(err).Msg("checkout: session creation failed")
		a.error(w, http.StatusInternalServerError, "Stripe checkout failed")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"url": out.URL})
}
