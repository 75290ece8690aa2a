package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pawkeeper/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// defaultCallTimeout bounds every provider call when the config leaves it unset.
const defaultCallTimeout = 10 * time.Second

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey   string
	BaseURL     string        // Override for testing; defaults to stripeAPIBase
	CallTimeout time.Duration // Per-call bound; defaults to defaultCallTimeout
	Logger      *slog.Logger
}

// FeatureResolver maps a plan tier to the feature set it grants. Injected so
// this package stays ignorant of entitlement policy.
type FeatureResolver func(types.PlanTier) types.FeatureSet

// StripeClient implements BillingProvider by making direct HTTP calls to the
// Stripe REST API through BaseClient. Direct calls route all requests through
// the circuit breaker and make testing with httptest straightforward.
//
// Provider failures are surfaced as *types.ProviderError (API error bodies)
// or as the raw transport error (timeouts, connection failures); the
// entitlement classifier is the only component that interprets either.
type StripeClient struct {
	base        *BaseClient
	secretKey   string
	baseURL     string
	callTimeout time.Duration
	features    FeatureResolver
	logger      *slog.Logger
}

// NewStripeClient creates a new StripeClient with its own BaseClient.
func NewStripeClient(httpClient *http.Client, features FeatureResolver, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(httpClient, "stripe", "PawKeeper/1.0")
	return NewStripeClientWithBase(base, features, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Useful for testing when the BaseClient needs to be controlled.
func NewStripeClientWithBase(base *BaseClient, features FeatureResolver, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:        base,
		secretKey:   cfg.SecretKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		callTimeout: timeout,
		features:    features,
		logger:      logger,
	}
}

// ---------------------------------------------------------------------------
// BillingProvider Implementation
// ---------------------------------------------------------------------------

// GetSubscriptionStatus fetches the customer's current subscription and maps
// it to the domain entitlement snapshot. A customer with no subscription at
// all resolves to the free tier; that is a successful fetch, not an error.
func (s *StripeClient) GetSubscriptionStatus(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("status", "all")
	params.Set("limit", "1")

	resp, err := s.doGet(ctx, "/v1/subscriptions", params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.errorFromResponse(resp)
	}

	var list stripeSubscriptionList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding Stripe subscriptions response: %w", err)
	}

	if len(list.Data) == 0 {
		free := types.FreeStatus(s.features(types.TierFree))
		return &free, nil
	}

	return s.mapSubscription(&list.Data[0]), nil
}

// CreateSubscription starts a subscription on the given price, paying with
// the given payment method. payment_behavior=allow_incomplete lets Stripe
// return a subscription that still needs 3-D Secure confirmation.
func (s *StripeClient) CreateSubscription(ctx context.Context, customerID, planID, paymentMethodID string) (*types.SubscriptionCreation, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("items[0][price]", planID)
	params.Set("default_payment_method", paymentMethodID)
	params.Set("payment_behavior", "allow_incomplete")
	params.Set("expand[]", "latest_invoice.payment_intent")

	resp, err := s.doPost(ctx, "/v1/subscriptions", params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.errorFromResponse(resp)
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("decoding Stripe subscription creation response: %w", err)
	}

	creation := &types.SubscriptionCreation{SubscriptionID: sub.ID}
	if pi := sub.LatestInvoice.PaymentIntent; pi != nil && pi.Status == "requires_action" {
		creation.RequiresAction = true
		creation.ClientSecret = pi.ClientSecret
	}
	return creation, nil
}

// CancelSubscription cancels the customer's subscription. Immediate
// cancellation deletes the subscription; otherwise it is flagged to lapse at
// period end so the remaining paid time stays usable.
func (s *StripeClient) CancelSubscription(ctx context.Context, customerID string, immediately bool) error {
	subID, err := s.resolveSubscriptionID(ctx, customerID)
	if err != nil {
		return err
	}

	var resp *http.Response
	if immediately {
		resp, err = s.doDelete(ctx, "/v1/subscriptions/"+subID)
	} else {
		params := url.Values{}
		params.Set("cancel_at_period_end", "true")
		resp, err = s.doPost(ctx, "/v1/subscriptions/"+subID, params)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.errorFromResponse(resp)
	}
	return nil
}

// ReactivateSubscription undoes a pending at-period-end cancellation.
func (s *StripeClient) ReactivateSubscription(ctx context.Context, customerID string) error {
	subID, err := s.resolveSubscriptionID(ctx, customerID)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("cancel_at_period_end", "false")

	resp, err := s.doPost(ctx, "/v1/subscriptions/"+subID, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.errorFromResponse(resp)
	}
	return nil
}

// ListPaymentMethods returns the customer's stored payment instruments with
// the default flagged. Stripe keeps the default on the customer object, so
// this is two calls.
func (s *StripeClient) ListPaymentMethods(ctx context.Context, customerID string) ([]types.PaymentMethodInfo, error) {
	defaultID, err := s.defaultPaymentMethodID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("type", "card")

	resp, err := s.doGet(ctx, "/v1/payment_methods", params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.errorFromResponse(resp)
	}

	var list stripePaymentMethodList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding Stripe payment methods response: %w", err)
	}

	methods := make([]types.PaymentMethodInfo, 0, len(list.Data))
	for _, pm := range list.Data {
		info := mapPaymentMethod(&pm)
		info.IsDefault = pm.ID == defaultID
		methods = append(methods, info)
	}
	return methods, nil
}

// AttachPaymentMethod attaches a tokenized payment method to the customer.
func (s *StripeClient) AttachPaymentMethod(ctx context.Context, customerID, token string) (*types.PaymentMethodInfo, error) {
	params := url.Values{}
	params.Set("customer", customerID)

	resp, err := s.doPost(ctx, "/v1/payment_methods/"+token+"/attach", params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.errorFromResponse(resp)
	}

	var pm stripePaymentMethod
	if err := json.NewDecoder(resp.Body).Decode(&pm); err != nil {
		return nil, fmt.Errorf("decoding Stripe payment method attach response: %w", err)
	}

	info := mapPaymentMethod(&pm)
	return &info, nil
}

// DetachPaymentMethod removes a stored payment method.
func (s *StripeClient) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	resp, err := s.doPost(ctx, "/v1/payment_methods/"+paymentMethodID+"/detach", url.Values{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.errorFromResponse(resp)
	}
	return nil
}

// SetDefaultPaymentMethod marks the given method as the customer's invoice
// default. Stripe applies this atomically on the customer object.
func (s *StripeClient) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := url.Values{}
	params.Set("invoice_settings[default_payment_method]", paymentMethodID)

	resp, err := s.doPost(ctx, "/v1/customers/"+customerID, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.errorFromResponse(resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

func (s *StripeClient) doDelete(ctx context.Context, path string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// resolveSubscriptionID finds the customer's current subscription ID.
func (s *StripeClient) resolveSubscriptionID(ctx context.Context, customerID string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("status", "all")
	params.Set("limit", "1")

	resp, err := s.doGet(ctx, "/v1/subscriptions", params)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.errorFromResponse(resp)
	}

	var list stripeSubscriptionList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("decoding Stripe subscriptions response: %w", err)
	}
	if len(list.Data) == 0 {
		return "", types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("customer %s has no subscription", customerID),
			nil,
		)
	}
	return list.Data[0].ID, nil
}

// defaultPaymentMethodID reads invoice_settings.default_payment_method from
// the customer object. Empty when no default is set.
func (s *StripeClient) defaultPaymentMethodID(ctx context.Context, customerID string) (string, error) {
	resp, err := s.doGet(ctx, "/v1/customers/"+customerID, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.errorFromResponse(resp)
	}

	var cust stripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&cust); err != nil {
		return "", fmt.Errorf("decoding Stripe customer response: %w", err)
	}
	return cust.InvoiceSettings.DefaultPaymentMethod, nil
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

// errorFromResponse reads a Stripe error response into a raw ProviderError.
// No interpretation happens here; classification belongs to the entitlement
// classifier.
func (s *StripeClient) errorFromResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &types.ProviderError{
			Code:       "response_unreadable",
			Message:    fmt.Sprintf("Stripe returned status %d and the body was unreadable", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return &types.ProviderError{
			Code:       "response_malformed",
			Message:    fmt.Sprintf("Stripe returned status %d with a non-JSON body", resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	code := stripeErr.Error.Code
	if code == "" {
		code = stripeErr.Error.Type
	}

	return &types.ProviderError{
		Code:        code,
		Message:     stripeErr.Error.Message,
		DeclineCode: stripeErr.Error.DeclineCode,
		HTTPStatus:  resp.StatusCode,
	}
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripeCustomer struct {
	ID              string                `json:"id"`
	InvoiceSettings stripeInvoiceSettings `json:"invoice_settings"`
}

type stripeInvoiceSettings struct {
	DefaultPaymentMethod string `json:"default_payment_method"`
}

type stripeSubscription struct {
	ID                string                  `json:"id"`
	Status            string                  `json:"status"`
	CancelAtPeriodEnd bool                    `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64                   `json:"current_period_end"`
	TrialEnd          int64                   `json:"trial_end"`
	Items             stripeSubscriptionItems `json:"items"`
	LatestInvoice     stripeInvoiceExpand     `json:"latest_invoice"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	ID        string `json:"id"`
	LookupKey string `json:"lookup_key"`
}

type stripeInvoiceExpand struct {
	PaymentIntent *stripePaymentIntent `json:"payment_intent"`
}

type stripePaymentIntent struct {
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
}

type stripeSubscriptionList struct {
	Data []stripeSubscription `json:"data"`
}

type stripePaymentMethod struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Card *stripeCardInfo `json:"card"`
}

type stripeCardInfo struct {
	Brand    string            `json:"brand"`
	Last4    string            `json:"last4"`
	ExpMonth int               `json:"exp_month"`
	ExpYear  int               `json:"exp_year"`
	Wallet   *stripeCardWallet `json:"wallet"`
}

type stripeCardWallet struct {
	Type string `json:"type"`
}

type stripePaymentMethodList struct {
	Data []stripePaymentMethod `json:"data"`
}

// ---------------------------------------------------------------------------
// Mapping Functions
// ---------------------------------------------------------------------------

// mapSubscription converts a Stripe subscription to the domain snapshot.
func (s *StripeClient) mapSubscription(sub *stripeSubscription) *types.SubscriptionStatus {
	state := mapSubscriptionState(sub.Status)
	tier := types.TierFree
	if len(sub.Items.Data) > 0 {
		tier = mapPriceToTier(sub.Items.Data[0].Price)
	}

	status := &types.SubscriptionStatus{
		Tier:      tier,
		State:     state,
		IsActive:  state == types.StateActive || state == types.StateTrialing,
		WillRenew: !sub.CancelAtPeriodEnd && (state == types.StateActive || state == types.StateTrialing),
		Features:  s.features(tier),
	}
	status.IsPremium = status.IsActive && tier != types.TierFree

	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		status.ExpiresAt = &t
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		status.TrialEndsAt = &t
	}

	return status
}

// mapSubscriptionState converts a Stripe subscription status string to the
// domain enum. Unknown states pass through so new provider states surface in
// logs rather than being silently mislabeled.
func mapSubscriptionState(status string) types.SubscriptionState {
	switch status {
	case "active":
		return types.StateActive
	case "trialing":
		return types.StateTrialing
	case "past_due":
		return types.StatePastDue
	case "canceled", "incomplete_expired":
		return types.StateCanceled
	case "unpaid":
		return types.StateUnpaid
	default:
		return types.SubscriptionState(status)
	}
}

// mapPaymentMethod converts a Stripe payment method, distinguishing wallet
// cards (Apple/Google Pay) from plain cards.
func mapPaymentMethod(pm *stripePaymentMethod) types.PaymentMethodInfo {
	info := types.PaymentMethodInfo{
		ID:   pm.ID,
		Type: types.MethodCard,
	}
	if pm.Card != nil {
		info.Brand = pm.Card.Brand
		info.Last4 = pm.Card.Last4
		info.ExpMonth = pm.Card.ExpMonth
		info.ExpYear = pm.Card.ExpYear
		if pm.Card.Wallet != nil {
			switch pm.Card.Wallet.Type {
			case "apple_pay":
				info.Type = types.MethodApplePay
			case "google_pay":
				info.Type = types.MethodGooglePay
			}
		}
	}
	return info
}

// ---------------------------------------------------------------------------
// Price ID <-> Plan Tier Mapping
// ---------------------------------------------------------------------------

// PriceToTier maps Stripe Price IDs to plan tiers. In production the IDs are
// injected from configuration at startup; lookup keys act as a fallback so a
// rotated price ID with a stable lookup_key still maps correctly.
var PriceToTier = map[string]types.PlanTier{
	"price_premium_monthly": types.TierPremium,
	"price_premium_yearly":  types.TierPremium,
	"price_pro_monthly":     types.TierPro,
	"price_pro_yearly":      types.TierPro,
}

func mapPriceToTier(price stripePrice) types.PlanTier {
	if tier, ok := PriceToTier[price.ID]; ok {
		return tier
	}
	switch {
	case strings.HasPrefix(price.LookupKey, "premium"):
		return types.TierPremium
	case strings.HasPrefix(price.LookupKey, "pro"):
		return types.TierPro
	default:
		return types.TierFree
	}
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier validates webhook payloads using stripe-go's HMAC-SHA256
// signature check with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header and
// signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
