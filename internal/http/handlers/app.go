package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"roomstaging/internal/fulfillment"
	"roomstaging/internal/infra"
	"roomstaging/internal/payment"
	"roomstaging/internal/providers/vsai"
	"roomstaging/internal/staging"
)

// Stager runs job submission.
type Stager interface {
	Stage(ctx context.Context, in staging.Input) (*staging.Result, error)
}

// Fulfiller delivers paid jobs and finalizes existing renders.
type Fulfiller interface {
	Fulfill(ctx context.Context, order fulfillment.Order) (*fulfillment.Result, error)
	Finalize(ctx context.Context, renderID, jobID string) (*fulfillment.Finalized, error)
}

// Payments opens checkouts and authenticates payment callbacks.
type Payments interface {
	CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error)
	VerifyEvent(payload []byte, signature string) (*payment.Event, error)
}

// Renders is the raw rendering API used by the pass-through endpoints.
type Renders interface {
	HasCredentials() bool
	Do(ctx context.Context, method, path string, query url.Values, body any) (*vsai.Response, error)
}

type App struct {
	Staging     Stager
	Fulfillment Fulfiller
	Payments    Payments
	Renders     Renders
	Logger      *infra.Logger
}

func NewApp(stager Stager, fulfiller Fulfiller, payments Payments, renders Renders, logger *infra.Logger) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &App{
		Staging:     stager,
		Fulfillment: fulfiller,
		Payments:    payments,
		Renders:     renders,
		Logger:      logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}

// MethodNotAllowed answers routes hit with the wrong verb.
func (a *App) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.error(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// NotFound answers unknown routes.
func (a *App) NotFound(w http.ResponseWriter, r *http.Request) {
	a.error(w, http.StatusNotFound, "Not found")
}
