package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/id"
	"github.com/xraph/tokensale/sale"
	"github.com/xraph/tokensale/types"
)

// saleView is a sale plus its phase at request time.
type saleView struct {
	*sale.Sale
	Status sale.Status `json:"status"`
}

type amountRequest struct {
	Amount types.Amount `json:"amount"`
}

type rateResponse struct {
	Rate uint64 `json:"rate"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSales(w http.ResponseWriter, r *http.Request) {
	sales, err := s.engine.ListSales(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.engine.Now()
	out := make([]saleView, len(sales))
	for i, sl := range sales {
		out[i] = saleView{Sale: sl, Status: sl.Status(now)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createSale(w http.ResponseWriter, r *http.Request) {
	var p sale.Params
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	sl, err := s.engine.CreateSale(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saleView{Sale: sl, Status: sl.Status(s.engine.Now())})
}

func (s *Server) getSale(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	sl, err := s.engine.GetSale(r.Context(), saleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saleView{Sale: sl, Status: sl.Status(s.engine.Now())})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	status, err := s.engine.Status(r.Context(), saleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]sale.Status{"status": status})
}

func (s *Server) getBalances(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	bal, err := s.engine.Balances(r.Context(), saleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) getLimit(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "malformed address")
		return
	}
	l, err := s.engine.Limit(r.Context(), saleID, common.HexToAddress(raw))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) listPurchases(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var opts sale.ListOpts
	if raw := q.Get("buyer"); raw != "" {
		if !common.IsHexAddress(raw) {
			writeError(w, http.StatusBadRequest, "malformed buyer")
			return
		}
		opts.Buyer = common.HexToAddress(raw)
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "malformed limit")
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "malformed offset")
		return
	}

	list, err := s.engine.Purchases(r.Context(), saleID, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	list, err := s.engine.Withdrawals(r.Context(), saleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) fund(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	if err := s.engine.Fund(r.Context(), saleID, callerFrom(r.Context()), req.Amount); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) buyTokens(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	p, err := s.engine.BuyTokens(r.Context(), saleID, callerFrom(r.Context()), req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updatePrice(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	rate, err := s.engine.UpdateTokenPrice(r.Context(), saleID, callerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rateResponse{Rate: rate})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	wd, err := s.engine.Withdraw(r.Context(), saleID, callerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func (s *Server) withdrawTokens(w http.ResponseWriter, r *http.Request) {
	saleID, ok := parseSaleID(w, r)
	if !ok {
		return
	}
	wd, err := s.engine.WithdrawTokens(r.Context(), saleID, callerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func parseSaleID(w http.ResponseWriter, r *http.Request) (id.SaleID, bool) {
	saleID, err := id.ParseSaleID(chi.URLParam(r, "saleID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "sale not found")
		return id.Nil, false
	}
	return saleID, true
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case tokensale.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, tokensale.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, tokensale.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, tokensale.ErrAlreadyExists), errors.Is(err, tokensale.ErrAlreadyWithdrawn):
		return http.StatusConflict
	case tokensale.IsRejected(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tokensale.ErrStoreClosed), errors.Is(err, tokensale.ErrStoreNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
