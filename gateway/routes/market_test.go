package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"datamarket/core/events"
	"datamarket/core/state"
	"datamarket/gateway/middleware"
	"datamarket/indexer"
	"datamarket/native/market"
	"datamarket/storage"
)

const (
	adminAddr    = "0x00000000000000000000000000000000000000ad"
	producerAddr = "0x0000000000000000000000000000000000000001"
	buyerAddr    = "0x0000000000000000000000000000000000000002"
)

type testServer struct {
	handler http.Handler
	engine  *market.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store, err := state.NewStore(db)
	require.NoError(t, err)
	engine := market.NewEngine(store)

	index, err := indexer.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	engine.SetEmitter(events.Multi{index})

	admin, err := market.ParseAddress(adminAddr)
	require.NoError(t, err)
	_, err = engine.Bootstrap(admin, 5)
	require.NoError(t, err)

	handler, err := New(Config{
		Engine:        engine,
		Events:        index,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{}, nil),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true}, nil),
	})
	require.NoError(t, err)
	return &testServer{handler: handler, engine: engine}
}

func (s *testServer) do(t *testing.T, method, path, principal, scopes string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set(middleware.HeaderPrincipal, principal)
	}
	if scopes != "" {
		req.Header.Set(middleware.HeaderScopes, scopes)
	}
	res := httptest.NewRecorder()
	s.handler.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), out))
}

func (s *testServer) registerDataset(t *testing.T, pricing, price string) datasetView {
	t.Helper()
	res := s.do(t, http.MethodPost, "/v1/datasets", producerAddr, "", map[string]interface{}{
		"title":      "Shipping lanes",
		"category":   "geospatial",
		"pricing":    pricing,
		"contentRef": "ipfs://lanes",
		"dataHash":   "0xabc",
		"price":      price,
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var view datasetView
	decode(t, res, &view)
	return view
}

func (s *testServer) credit(t *testing.T, addr, value string) {
	t.Helper()
	res := s.do(t, http.MethodPost, "/v1/admin/accounts/"+addr+"/credit", adminAddr, middleware.ScopeAdmin, map[string]string{"amount": value})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func TestPurchaseFlow(t *testing.T) {
	s := newTestServer(t)
	s.credit(t, buyerAddr, "1000")
	ds := s.registerDataset(t, "fixed", "100")
	require.Equal(t, uint64(1), ds.ID)
	require.Equal(t, "100", ds.Price)

	res := s.do(t, http.MethodPost, "/v1/datasets/1/purchase", buyerAddr, "", map[string]string{"payment": "150"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var receipt receiptView
	decode(t, res, &receipt)
	require.Equal(t, "5", receipt.PlatformFee)
	require.Equal(t, "95", receipt.ProducerAmount)
	require.Equal(t, "50", receipt.Refund)
	require.Equal(t, market.TokenActive, receipt.Token.Status)

	res = s.do(t, http.MethodPost, "/v1/tokens/1/consume", buyerAddr, "", map[string]uint64{"datasetId": 1})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = s.do(t, http.MethodGet, "/v1/accounts/"+buyerAddr, buyerAddr, "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var account accountView
	decode(t, res, &account)
	require.Equal(t, "900", account.Balance)
	require.Len(t, account.Tokens, 1)

	res = s.do(t, http.MethodGet, "/v1/marketplace", buyerAddr, "", nil)
	var m marketplaceView
	decode(t, res, &m)
	require.Equal(t, "5", m.Treasury)
	require.Equal(t, uint64(1), m.SaleCount)

	res = s.do(t, http.MethodGet, "/v1/datasets/1", "", "", nil)
	var after datasetView
	decode(t, res, &after)
	require.Equal(t, "95", after.RewardPool)
	require.Equal(t, uint64(1), after.ViewCount)

	res = s.do(t, http.MethodGet, "/v1/events?type="+market.EventTypeDatasetPurchased, "", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var listed struct {
		Events []eventView `json:"events"`
	}
	decode(t, res, &listed)
	require.Len(t, listed.Events, 1)
	require.Equal(t, "1", listed.Events[0].Attributes["tokenId"])

	res = s.do(t, http.MethodGet, "/v1/datasets/1/audit", "", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"balanced":true`)
}

func TestStakeEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.credit(t, buyerAddr, "500")
	s.registerDataset(t, "fixed", "100")

	res := s.do(t, http.MethodPost, "/v1/datasets/1/stake", buyerAddr, "", map[string]string{"amount": "200"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var stake stakeView
	decode(t, res, &stake)
	require.Equal(t, "200", stake.Amount)

	res = s.do(t, http.MethodGet, "/v1/stakes/1", buyerAddr, "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &stake)
	require.Equal(t, "0", stake.Reward)

	res = s.do(t, http.MethodPost, "/v1/stakes/1/unstake", producerAddr, "", nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(t, http.MethodPost, "/v1/stakes/1/unstake", buyerAddr, "", nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var redeemed redemptionView
	decode(t, res, &redeemed)
	require.Equal(t, "200", redeemed.Total)

	res = s.do(t, http.MethodGet, "/v1/stakes/1", buyerAddr, "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)
	s.credit(t, buyerAddr, "1000")
	s.registerDataset(t, "per_access", "10")

	cases := []struct {
		name      string
		method    string
		path      string
		principal string
		scopes    string
		body      interface{}
		status    int
	}{
		{"no principal", http.MethodPost, "/v1/datasets/1/purchase", "", "", map[string]string{"payment": "10"}, http.StatusUnauthorized},
		{"underpaid", http.MethodPost, "/v1/datasets/1/purchase", buyerAddr, "", map[string]string{"payment": "9"}, http.StatusPaymentRequired},
		{"bad amount", http.MethodPost, "/v1/datasets/1/purchase", buyerAddr, "", map[string]string{"payment": "ten"}, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/v1/datasets/1/stake", buyerAddr, "", map[string]string{"amount": "-1"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/datasets/1/purchase", buyerAddr, "", map[string]string{"paymnet": "10"}, http.StatusBadRequest},
		{"missing dataset", http.MethodGet, "/v1/datasets/42", "", "", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/datasets/zero", "", "", nil, http.StatusBadRequest},
		{"foreign update", http.MethodPatch, "/v1/datasets/1", buyerAddr, "", map[string]string{"title": "mine"}, http.StatusForbidden},
		{"admin without scope", http.MethodPost, "/v1/admin/pause", adminAddr, "", map[string]bool{"paused": true}, http.StatusForbidden},
		{"admin scope wrong principal", http.MethodPost, "/v1/admin/pause", buyerAddr, middleware.ScopeAdmin, map[string]bool{"paused": true}, http.StatusForbidden},
		{"fee out of range", http.MethodPost, "/v1/admin/fee", adminAddr, middleware.ScopeAdmin, map[string]int{"platformFeePct": 101}, http.StatusBadRequest},
		{"bad category", http.MethodPost, "/v1/datasets", producerAddr, "", map[string]string{"title": "x", "category": "astrology", "pricing": "free"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		res := s.do(t, tc.method, tc.path, tc.principal, tc.scopes, tc.body)
		require.Equal(t, tc.status, res.Code, "%s: %s", tc.name, res.Body.String())
	}

	res := s.do(t, http.MethodPost, "/v1/datasets/1/purchase", buyerAddr, "", map[string]string{"payment": "10"})
	require.Equal(t, http.StatusCreated, res.Code)
	res = s.do(t, http.MethodPost, "/v1/tokens/1/consume", buyerAddr, "", map[string]uint64{"datasetId": 1})
	require.Equal(t, http.StatusOK, res.Code)
	res = s.do(t, http.MethodPost, "/v1/tokens/1/consume", buyerAddr, "", map[string]uint64{"datasetId": 1})
	require.Equal(t, http.StatusGone, res.Code)
	res = s.do(t, http.MethodGet, "/v1/tokens/1", producerAddr, "", nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(t, http.MethodPost, "/v1/admin/pause", adminAddr, middleware.ScopeAdmin, map[string]bool{"paused": true})
	require.Equal(t, http.StatusOK, res.Code)
	res = s.do(t, http.MethodPost, "/v1/datasets/1/purchase", buyerAddr, "", map[string]string{"payment": "10"})
	require.Equal(t, http.StatusLocked, res.Code)
}

func TestUpdateKeepsActiveFlagWhenOmitted(t *testing.T) {
	s := newTestServer(t)
	s.registerDataset(t, "fixed", "100")

	res := s.do(t, http.MethodPatch, "/v1/datasets/1", producerAddr, "", map[string]string{"title": "Renamed", "price": "80"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var view datasetView
	decode(t, res, &view)
	require.True(t, view.Active)
	require.Equal(t, "Renamed", view.Title)
	require.Equal(t, "80", view.Price)

	res = s.do(t, http.MethodPatch, "/v1/datasets/1", producerAddr, "", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &view)
	require.False(t, view.Active)

	res = s.do(t, http.MethodPatch, "/v1/datasets/1", producerAddr, "", map[string]string{"description": "daily rollups"})
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &view)
	require.False(t, view.Active)

	res = s.do(t, http.MethodGet, "/v1/datasets?active=true", "", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"datasets":[]`)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	res := s.do(t, http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = s.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "gateway_requests_total")
}
