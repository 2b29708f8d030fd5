package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"datamarket/crypto"
	"datamarket/gateway/middleware"
	"datamarket/native/market"
)

const marketRequestLimit = 1 << 20 // 1 MiB

type marketRoutes struct {
	engine *market.Engine
	events EventSource
	logger *slog.Logger
}

func (mr *marketRoutes) mount(r chi.Router) {
	r.Get("/marketplace", mr.getMarketplace)
	r.Post("/datasets", mr.registerDataset)
	r.Get("/datasets", mr.listDatasets)
	r.Get("/datasets/{datasetID}", mr.getDataset)
	r.Patch("/datasets/{datasetID}", mr.updateDataset)
	r.Get("/datasets/{datasetID}/audit", mr.auditDataset)
	r.Post("/datasets/{datasetID}/purchase", mr.purchase)
	r.Post("/datasets/{datasetID}/withdraw", mr.withdraw)
	r.Post("/datasets/{datasetID}/stake", mr.stake)
	r.Get("/stakes/{stakeID}", mr.getStake)
	r.Post("/stakes/{stakeID}/unstake", mr.unstake)
	r.Get("/tokens/{tokenID}", mr.getToken)
	r.Post("/tokens/{tokenID}/consume", mr.consume)
	r.Get("/accounts/{address}", mr.getAccount)
	r.Get("/events", mr.listEvents)
	r.Get("/events/stream", mr.streamEvents)
}

func (mr *marketRoutes) mountAdmin(r chi.Router) {
	r.Post("/fee", mr.setFee)
	r.Post("/pause", mr.setPaused)
	r.Post("/accounts/{address}/credit", mr.credit)
	r.Get("/events/export", mr.exportEvents)
}

type registerRequest struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Category             string   `json:"category"`
	Pricing              string   `json:"pricing"`
	ContentRef           string   `json:"contentRef"`
	MetadataRef          string   `json:"metadataRef"`
	SchemaHash           string   `json:"schemaHash"`
	DataHash             string   `json:"dataHash"`
	Price                string   `json:"price"`
	SubscriptionDuration int64    `json:"subscriptionDuration"`
	Tags                 []string `json:"tags"`
	RoyaltyPct           uint8    `json:"royaltyPct"`
}

type updateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Active      *bool  `json:"active"`
}

type paymentRequest struct {
	Payment string `json:"payment"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type consumeRequest struct {
	DatasetID uint64 `json:"datasetId"`
}

type feeRequest struct {
	PlatformFeePct *uint8 `json:"platformFeePct"`
}

type pauseRequest struct {
	Paused *bool `json:"paused"`
}

func (mr *marketRoutes) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		mr.logger.Error("market request failed", "method", r.Method, "route", r.URL.Path, "error", err)
	}
	writeJSONError(w, status, err)
}

func (mr *marketRoutes) getMarketplace(w http.ResponseWriter, r *http.Request) {
	m, err := mr.engine.Marketplace()
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketplaceView(m))
}

func (mr *marketRoutes) registerDataset(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	category, err := market.ParseCategory(req.Category)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	pricing, err := market.ParsePricingModel(req.Pricing)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	params := market.RegisterParams{
		Title:                req.Title,
		Description:          req.Description,
		Category:             category,
		Pricing:              pricing,
		ContentRef:           req.ContentRef,
		MetadataRef:          req.MetadataRef,
		SchemaHash:           req.SchemaHash,
		DataHash:             req.DataHash,
		SubscriptionDuration: req.SubscriptionDuration,
		Tags:                 req.Tags,
		RoyaltyPct:           req.RoyaltyPct,
	}
	if strings.TrimSpace(req.Price) != "" {
		if params.Price, err = parseAmount("price", req.Price); err != nil {
			mr.fail(w, r, err)
			return
		}
	}
	ds, err := mr.engine.Register(caller, params)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDatasetView(ds))
}

func (mr *marketRoutes) listDatasets(w http.ResponseWriter, r *http.Request) {
	var filter market.DatasetFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("producer")); raw != "" {
		producer, err := market.ParseAddress(raw)
		if err != nil {
			mr.fail(w, r, err)
			return
		}
		filter.Producer = &producer
	}
	if raw := strings.TrimSpace(query.Get("category")); raw != "" {
		category, err := market.ParseCategory(raw)
		if err != nil {
			mr.fail(w, r, err)
			return
		}
		filter.Category = &category
	}
	if raw := strings.TrimSpace(query.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("active must be a boolean"))
			return
		}
		filter.ActiveOnly = active
	}
	datasets, err := mr.engine.Datasets(filter)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	out := make([]datasetView, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, newDatasetView(ds))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": out})
}

func (mr *marketRoutes) getDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "datasetID")
	if !ok {
		return
	}
	ds, err := mr.engine.Dataset(id)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDatasetView(ds))
}

func (mr *marketRoutes) updateDataset(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "datasetID")
	if !ok {
		return
	}
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	params := market.UpdateParams{Title: req.Title, Description: req.Description, Active: req.Active}
	if strings.TrimSpace(req.Price) != "" {
		price, err := parseAmount("price", req.Price)
		if err != nil {
			mr.fail(w, r, err)
			return
		}
		params.Price = price
	}
	ds, err := mr.engine.UpdateMetadata(caller, id, params)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDatasetView(ds))
}

func (mr *marketRoutes) auditDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "datasetID")
	if !ok {
		return
	}
	if err := mr.engine.Audit(id); err != nil {
		if errors.Is(err, market.ErrPoolImbalance) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"datasetId": id, "balanced": false, "detail": err.Error()})
			return
		}
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasetId": id, "balanced": true})
}

func (mr *marketRoutes) purchase(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "datasetID")
	if !ok {
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	receipt, err := mr.engine.Purchase(caller, id, payment)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReceiptView(receipt, mr.engine.Now()))
}

func (mr *marketRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "datasetID")
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	ds, err := mr.engine.WithdrawProducerReward(caller, id, value)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDatasetView(ds))
}

func (mr *marketRoutes) stake(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "datasetID")
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	stake, err := mr.engine.Stake(caller, id, value)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newStakeView(stake, nil))
}

func (mr *marketRoutes) getStake(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "stakeID")
	if !ok {
		return
	}
	stake, err := mr.engine.StakeByID(id)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	preview, err := mr.engine.PreviewUnstake(id)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStakeView(stake, preview))
}

func (mr *marketRoutes) unstake(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "stakeID")
	if !ok {
		return
	}
	redeemed, err := mr.engine.Unstake(caller, id)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRedemptionView(redeemed))
}

func (mr *marketRoutes) getToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "tokenID")
	if !ok {
		return
	}
	token, err := mr.engine.Token(id)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	if token.Owner != caller {
		mr.fail(w, r, fmt.Errorf("%w: token %d is not owned by caller", market.ErrUnauthorized, id))
		return
	}
	writeJSON(w, http.StatusOK, newTokenView(token, mr.engine.Now()))
}

func (mr *marketRoutes) consume(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "tokenID")
	if !ok {
		return
	}
	var req consumeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	token, err := mr.engine.ConsumeAccess(caller, id, req.DatasetID)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenView(token, mr.engine.Now()))
}

func (mr *marketRoutes) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := market.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	balance, err := mr.engine.Balance(addr)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	view := accountView{Address: market.HexAddr(addr), Bech32: crypto.Address(addr).String(), Balance: amount(balance), Tokens: []tokenView{}, Stakes: []stakeView{}}
	// Holdings are only disclosed to their owner.
	if caller, ok := middleware.PrincipalFromContext(r.Context()); ok && caller == addr {
		tokens, err := mr.engine.TokensOf(addr)
		if err != nil {
			mr.fail(w, r, err)
			return
		}
		now := mr.engine.Now()
		for _, token := range tokens {
			view.Tokens = append(view.Tokens, newTokenView(token, now))
		}
		stakes, err := mr.engine.StakesOf(addr)
		if err != nil {
			mr.fail(w, r, err)
			return
		}
		for _, stake := range stakes {
			view.Stakes = append(view.Stakes, newStakeView(stake, nil))
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (mr *marketRoutes) setFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req feeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.PlatformFeePct == nil {
		writeBadRequest(w, errors.New("platformFeePct is required"))
		return
	}
	m, err := mr.engine.SetPlatformFee(caller, *req.PlatformFeePct)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketplaceView(m))
}

func (mr *marketRoutes) setPaused(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Paused == nil {
		writeBadRequest(w, errors.New("paused is required"))
		return
	}
	m, err := mr.engine.SetPaused(caller, *req.Paused)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketplaceView(m))
}

func (mr *marketRoutes) credit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	addr, err := market.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	value, err := parseAmount("amount", req.Amount)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	balance, err := mr.engine.Credit(caller, addr, value)
	if err != nil {
		mr.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": market.HexAddr(addr), "balance": amount(balance)})
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errPrincipalRequired)
		return principal, false
	}
	return principal, true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeBadRequest(w, fmt.Errorf("%s must be a positive integer", param))
		return 0, false
	}
	return id, true
}

// parseAmount accepts a base-10 integer. Negative values are rejected here;
// zero is left for the engine to judge.
func parseAmount(field, raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a base-10 integer", market.ErrInvalidInput, field)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", market.ErrInvalidAmount, field)
	}
	return value, nil
}

func decodeJSON(r *http.Request, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, marketRequestLimit+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > marketRequestLimit {
		return errors.New("request body too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
