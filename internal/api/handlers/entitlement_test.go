package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawkeeper/internal/types"
)

type mockEngine struct {
	GetEntitlementFunc      func(ctx context.Context) (*types.SubscriptionStatus, error)
	RefreshEntitlementFunc  func(ctx context.Context) (*types.SubscriptionStatus, error)
	CanAccessFeatureFunc    func(ctx context.Context, id types.FeatureID) bool
	CheckResourceAccessFunc func(ctx context.Context, kind types.ResourceKind, currentCount int) types.AccessDecision
}

func (m *mockEngine) GetEntitlement(ctx context.Context) (*types.SubscriptionStatus, error) {
	return m.GetEntitlementFunc(ctx)
}

func (m *mockEngine) RefreshEntitlement(ctx context.Context) (*types.SubscriptionStatus, error) {
	return m.RefreshEntitlementFunc(ctx)
}

func (m *mockEngine) CanAccessFeature(ctx context.Context, id types.FeatureID) bool {
	return m.CanAccessFeatureFunc(ctx, id)
}

func (m *mockEngine) CheckResourceAccess(ctx context.Context, kind types.ResourceKind, currentCount int) types.AccessDecision {
	return m.CheckResourceAccessFunc(ctx, kind, currentCount)
}

type mockEngineSource struct {
	engine  *mockEngine
	evicted []string
}

func (s *mockEngineSource) For(userID, customerID string) EntitlementEngine { return s.engine }
func (s *mockEngineSource) Evict(userID string)                             { s.evicted = append(s.evicted, userID) }

func newEntitlementRouter(source *mockEngineSource) chi.Router {
	r := chi.NewRouter()
	NewEntitlementHandler(source).RegisterRoutes(r)
	return r
}

func authed(req *http.Request) *http.Request {
	ctx := types.WithActor(req.Context(), types.Actor{
		ID:         "user_1",
		Type:       types.ActorTypeUser,
		CustomerID: "cus_1",
	})
	return req.WithContext(ctx)
}

func TestEntitlementGet(t *testing.T) {
	source := &mockEngineSource{engine: &mockEngine{
		GetEntitlementFunc: func(ctx context.Context) (*types.SubscriptionStatus, error) {
			return &types.SubscriptionStatus{
				IsActive:  true,
				IsPremium: true,
				Tier:      types.TierPremium,
				State:     types.StateActive,
			}, nil
		},
	}}

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil))
	rec := httptest.NewRecorder()
	newEntitlementRouter(source).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data types.SubscriptionStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.TierPremium, body.Data.Tier)
	assert.True(t, body.Data.IsPremium)
}

func TestEntitlementGet_Unauthenticated(t *testing.T) {
	source := &mockEngineSource{engine: &mockEngine{}}

	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	rec := httptest.NewRecorder()
	newEntitlementRouter(source).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEntitlementGet_PaymentErrorMapsTo402(t *testing.T) {
	source := &mockEngineSource{engine: &mockEngine{
		GetEntitlementFunc: func(ctx context.Context) (*types.SubscriptionStatus, error) {
			return nil, &types.PaymentError{
				Code:        "card_declined",
				Message:     "Your payment method was declined.",
				Kind:        types.KindCardError,
				DeclineCode: "do_not_honor",
			}
		},
	}}

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil))
	rec := httptest.NewRecorder()
	newEntitlementRouter(source).ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var body struct {
		Error struct {
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "card_error", body.Error.Code)
	assert.Equal(t, "do_not_honor", body.Error.DeclineCode)
}

func TestCheckAccess(t *testing.T) {
	var gotKind types.ResourceKind
	var gotCount int
	source := &mockEngineSource{engine: &mockEngine{
		CheckResourceAccessFunc: func(ctx context.Context, kind types.ResourceKind, currentCount int) types.AccessDecision {
			gotKind, gotCount = kind, currentCount
			return types.AccessDecision{Allowed: false, RequiresUpgrade: true, Message: "limit reached"}
		},
	}}

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/entitlement/access?resource=pets&count=1", nil))
	rec := httptest.NewRecorder()
	newEntitlementRouter(source).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.ResourcePets, gotKind)
	assert.Equal(t, 1, gotCount)

	var body struct {
		Data types.AccessDecision `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data.Allowed)
	assert.True(t, body.Data.RequiresUpgrade)
}

func TestCheckAccess_ParamValidation(t *testing.T) {
	source := &mockEngineSource{engine: &mockEngine{}}
	router := newEntitlementRouter(source)

	for _, target := range []string{
		"/v1/entitlement/access?count=1",             // missing resource
		"/v1/entitlement/access?resource=pets",       // missing count
		"/v1/entitlement/access?resource=pets&count=-1",
		"/v1/entitlement/access?resource=pets&count=abc",
	} {
		req := authed(httptest.NewRequest(http.MethodGet, target, nil))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestCheckFeature(t *testing.T) {
	source := &mockEngineSource{engine: &mockEngine{
		CanAccessFeatureFunc: func(ctx context.Context, id types.FeatureID) bool {
			return id == types.FeatureHealthRecords
		},
	}}
	router := newEntitlementRouter(source)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/entitlement/features/health_records", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data["allowed"])

	req = authed(httptest.NewRequest(http.MethodGet, "/v1/entitlement/features/vet_export", nil))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data["allowed"])
}

func TestLogout_EvictsEngine(t *testing.T) {
	source := &mockEngineSource{engine: &mockEngine{}}

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/session/logout", nil))
	rec := httptest.NewRecorder()
	newEntitlementRouter(source).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"user_1"}, source.evicted)
}
