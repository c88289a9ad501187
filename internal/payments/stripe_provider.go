package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const stripeProviderKey = "stripe"

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePaymentIntentAPI interface {
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripePaymentIntentAPI
	refunds  stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

// StripeProvider implements Provider with Checkout Sessions whose payment intents use manual
// capture. The payment id is the Checkout Session id.
type StripeProvider struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			intents:  sc.PaymentIntents,
			refunds:  sc.Refunds,
		}
	}
	if clients.sessions == nil || clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a Checkout Session that authorises but does not capture the funds.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		},
	}
	params.Context = ctx
	p.applyRequestOptions(&params.Params, req.IdempotencyKey)
	if req.Token != "" {
		params.ClientReferenceID = stripe.String(req.Token)
	}
	if req.Locale != "" {
		params.Locale = stripe.String(strings.ReplaceAll(strings.ToLower(req.Locale), "_", "-"))
	}
	if len(req.Metadata) > 0 || req.BuyerID != "" {
		metadata := maps.Clone(req.Metadata)
		if metadata == nil {
			metadata = map[string]string{}
		}
		if req.BuyerID != "" {
			metadata["buyer_id"] = req.BuyerID
		}
		params.Metadata = metadata
		params.PaymentIntentData.Metadata = maps.Clone(metadata)
	}

	params.LineItems = make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(defaultString(item.Currency, req.Currency))),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.Description != "" {
			line.PriceData.ProductData.Description = stripe.String(item.Description)
		}
		if item.SKU != "" {
			line.PriceData.ProductData.Metadata = map[string]string{"sku": item.SKU}
		}
		params.LineItems = append(params.LineItems, line)
	}
	if len(params.LineItems) == 0 {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order"),
				},
			},
		})
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"currency":  session.Currency,
		"amount":    session.AmountTotal,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return Intent{
		PaymentID:   session.ID,
		Provider:    stripeProviderKey,
		ApprovalURL: session.URL,
		ExpiresAt:   expiresAt,
		Raw:         rawMap(session, "session"),
	}, nil
}

// Capture settles the authorised payment intent behind a completed session. Capturing an
// already captured intent returns its details unchanged.
func (p *StripeProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	session, intent, err := p.sessionIntent(ctx, req.PaymentID)
	if err != nil {
		return PaymentDetails{}, err
	}
	if intent == nil {
		return PaymentDetails{}, fmt.Errorf("%w: session %s has no payment intent", ErrNotAuthorized, session.ID)
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return stripePaymentDetails(session.ID, intent), nil
	case stripe.PaymentIntentStatusRequiresCapture:
	default:
		return PaymentDetails{}, fmt.Errorf("%w: intent %s is %s", ErrNotAuthorized, intent.ID, intent.Status)
	}

	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	p.applyRequestOptions(&params.Params, req.IdempotencyKey)
	if req.Amount != nil {
		params.AmountToCapture = stripe.Int64(*req.Amount)
	}
	if req.PayerID != "" {
		params.AddMetadata("payer_id", req.PayerID)
	}
	captured, err := p.api.intents.Capture(intent.ID, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: capture payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"sessionId":      session.ID,
		"paymentIntent":  captured.ID,
		"amountReceived": captured.AmountReceived,
	})
	return stripePaymentDetails(session.ID, captured), nil
}

// Refund returns funds captured for the session.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	session, intent, err := p.sessionIntent(ctx, req.PaymentID)
	if err != nil {
		return PaymentDetails{}, err
	}
	if intent == nil {
		return PaymentDetails{}, fmt.Errorf("%w: session %s has no payment intent", ErrNotAuthorized, session.ID)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intent.ID),
	}
	params.Context = ctx
	p.applyRequestOptions(&params.Params, req.IdempotencyKey)
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = maps.Clone(req.Metadata)
	}
	if _, err := p.api.refunds.New(params); err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"sessionId":     session.ID,
		"paymentIntent": intent.ID,
	})
	return p.LookupPayment(ctx, LookupRequest{PaymentID: req.PaymentID})
}

// LookupPayment reports the session's payment state.
func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	session, intent, err := p.sessionIntent(ctx, req.PaymentID)
	if err != nil {
		return PaymentDetails{}, err
	}
	if intent != nil {
		return stripePaymentDetails(session.ID, intent), nil
	}
	status := StatusPending
	if session.Status == stripe.CheckoutSessionStatusExpired {
		status = StatusFailed
	}
	return PaymentDetails{
		Provider:  stripeProviderKey,
		PaymentID: session.ID,
		Status:    status,
		Amount:    session.AmountTotal,
		Currency:  strings.ToUpper(string(session.Currency)),
		Raw:       rawMap(session, "session"),
	}, nil
}

func (p *StripeProvider) sessionIntent(ctx context.Context, sessionID string) (*stripe.CheckoutSession, *stripe.PaymentIntent, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil, errors.New("stripe: payment id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	p.applyRequestOptions(&params.Params, "")
	params.AddExpand("payment_intent.latest_charge")
	session, err := p.api.sessions.Get(sessionID, params)
	if err != nil {
		return nil, nil, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		return session, nil, nil
	}
	intent := session.PaymentIntent
	if intent.Status == "" {
		intentParams := &stripe.PaymentIntentParams{}
		intentParams.Context = ctx
		p.applyRequestOptions(&intentParams.Params, "")
		if intent, err = p.api.intents.Get(session.PaymentIntent.ID, intentParams); err != nil {
			return nil, nil, fmt.Errorf("stripe: get payment intent: %w", err)
		}
	}
	return session, intent, nil
}

func (p *StripeProvider) applyRequestOptions(params *stripe.Params, idempotencyKey string) {
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
}

func stripePaymentDetails(sessionID string, intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	var status Status
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusRequiresCapture:
		status = StatusAuthorized
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	default:
		status = StatusPending
	}

	var capturedAt, refundedAt *time.Time
	captured := intent.Status == stripe.PaymentIntentStatusSucceeded
	if charge := intent.LatestCharge; charge != nil {
		if charge.Captured {
			t := time.Unix(charge.Created, 0).UTC()
			capturedAt = &t
			captured = true
		}
		if charge.Refunded || charge.AmountRefunded > 0 {
			t := time.Unix(charge.Created, 0).UTC()
			refundedAt = &t
			if charge.AmountRefunded >= charge.Amount && charge.Amount > 0 {
				status = StatusRefunded
			}
		}
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}

	return PaymentDetails{
		Provider:   stripeProviderKey,
		PaymentID:  sessionID,
		IntentID:   intent.ID,
		Status:     status,
		Amount:     intent.Amount,
		Currency:   currency,
		Captured:   captured,
		CapturedAt: capturedAt,
		RefundedAt: refundedAt,
		Raw:        rawMap(intent, "payment_intent"),
	}
}

func rawMap(value any, key string) map[string]any {
	raw := map[string]any{}
	if data, err := json.Marshal(value); err == nil {
		_ = json.Unmarshal(data, &raw)
	} else {
		raw[key] = value
	}
	return raw
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
