package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"golang.org/x/text/currency"

	"roomstaging/internal/domain"
	"roomstaging/internal/infra"
)

// EventCheckoutCompleted is the only event type that triggers fulfillment.
const EventCheckoutCompleted = "checkout.session.completed"

// ErrNotConfigured is returned when checkout is attempted without a secret key.
var ErrNotConfigured = errors.New("payment: stripe is not configured")

// maxUnitAmount is the largest unit_amount Stripe accepts.
const maxUnitAmount = 99999999

// Options configures the Stripe-backed gate.
type Options struct {
	SecretKey     string
	WebhookSecret string
	SiteURL       string
	ProductName   string
	Logger        *infra.Logger
}

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Gate creates checkout sessions carrying the staging join key and verifies
// the webhook events that come back.
type Gate struct {
	sessions      sessionCreator
	webhookSecret string
	siteURL       string
	productName   string
	logger        *infra.Logger
}

// CheckoutRequest is a checkout as submitted by the storefront. Metadata
// values may be any JSON scalar; they are coerced to strings.
type CheckoutRequest struct {
	Amount        float64
	Currency      string
	Metadata      map[string]any
	CustomerEmail string
}

// Checkout is a created session.
type Checkout struct {
	SessionID string
	URL       string
}

// Event is a verified webhook event. Only completed checkouts carry a
// session, metadata and payer email.
type Event struct {
	ID            string
	Type          string
	Completed     bool
	SessionID     string
	Metadata      domain.JobMetadata
	CustomerEmail string
}

// New constructs a Gate. Without a secret key CreateCheckout fails with
// ErrNotConfigured; verification only needs the webhook secret.
func New(opts Options) *Gate {
	var sessions sessionCreator
	if key := strings.TrimSpace(opts.SecretKey); key != "" {
		sessions = &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key}
	}
	return newGate(sessions, opts)
}

func newGate(sessions sessionCreator, opts Options) *Gate {
	productName := strings.TrimSpace(opts.ProductName)
	if productName == "" {
		productName = "Virtual Staging Image"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Gate{
		sessions:      sessions,
		webhookSecret: strings.TrimSpace(opts.WebhookSecret),
		siteURL:       strings.TrimRight(opts.SiteURL, "/"),
		productName:   productName,
		logger:        logger,
	}
}

// CreateCheckout validates the request and opens a one-item card checkout
// whose metadata is the job's join-key bundle.
func (g *Gate) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 || req.Amount > maxUnitAmount {
		return nil, domain.Invalid("Invalid amount")
	}
	if req.Amount != math.Trunc(req.Amount) {
		return nil, domain.Invalid("Amount must be a whole number of minor units")
	}
	code := strings.TrimSpace(req.Currency)
	if code == "" {
		return nil, domain.Invalid("Missing currency")
	}
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return nil, domain.Invalid("Invalid currency")
	}

	meta := domain.MetadataFromMap(coerceMetadata(req.Metadata))
	if meta.JobID == "" || meta.OriginalPath == "" || meta.OriginalURL == "" {
		return nil, domain.Invalid("Missing staging metadata")
	}
	meta.Version = domain.MetadataSchemaVersion

	if g.sessions == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(unit.String())),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(g.productName),
				},
				UnitAmount: stripe.Int64(int64(req.Amount)),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(g.siteURL + "/thank-you"),
		CancelURL:  stripe.String(g.siteURL + "/cancel"),
	}
	params.Context = ctx
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for k, v := range meta.Map() {
		params.AddMetadata(k, v)
	}

	sess, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("payment: create checkout session: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	g.logger.Info().Str("job_id", meta.JobID).Str("session_id", sess.ID).Msg("payment: checkout session created")
	return &Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

// VerifyEvent authenticates a webhook payload against the signing secret
// before decoding anything from it.
func (g *Gate) VerifyEvent(payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: missing signature header", domain.ErrInvalidSignature)
	}
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", domain.ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if out.Type != EventCheckoutCompleted {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &sess) != nil {
		return nil, fmt.Errorf("%w: undecodable checkout session", domain.ErrMissingMetadata)
	}
	out.Completed = true
	out.SessionID = sess.ID
	out.Metadata = domain.MetadataFromMap(sess.Metadata)
	out.CustomerEmail = payerEmail(&sess)
	return out, nil
}

func payerEmail(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails != nil {
		if email := strings.TrimSpace(sess.CustomerDetails.Email); email != "" {
			return email
		}
	}
	if email := strings.TrimSpace(sess.CustomerEmail); email != "" {
		return email
	}
	return strings.TrimSpace(sess.Metadata[domain.MetaCustomerEmail])
}

func coerceMetadata(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch typed := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = typed
		case float64:
			out[k] = strconv.FormatFloat(typed, 'f', -1, 64)
		case bool, json.Number:
			out[k] = fmt.Sprint(typed)
		default:
			encoded, err := json.Marshal(typed)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}
