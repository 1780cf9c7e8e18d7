package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"lendpool/events"
	"lendpool/lending"
	"lendpool/observability"
	"lendpool/storage"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Server exposes the pool engine over HTTP. Engine operations are serialised
// behind a single writer lock; the engine itself is not concurrency safe.
type Server struct {
	engine  *lending.Engine
	state   *storage.State
	vault   *vault
	oracle  *priceBook
	log     *slog.Logger
	metrics *observability.LendingMetrics
	limiter *rate.Limiter
	token   string
	clock   func() time.Time

	mu sync.Mutex
}

// NewServer wires the HTTP surface around an engine and its collaborators.
func NewServer(engine *lending.Engine, state *storage.State, vault *vault, oracle *priceBook, log *slog.Logger, adminToken string, rateLimitPerMin int) *Server {
	limit := rate.Inf
	burst := 1
	if rateLimitPerMin > 0 {
		limit = rate.Limit(float64(rateLimitPerMin) / 60.0)
		burst = rateLimitPerMin
	}
	return &Server{
		engine:  engine,
		state:   state,
		vault:   vault,
		oracle:  oracle,
		log:     log,
		metrics: observability.Lending(),
		limiter: rate.NewLimiter(limit, burst),
		token:   strings.TrimSpace(adminToken),
		clock:   time.Now,
	}
}

// Router assembles the chi routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.throttle)
		r.Get("/reserves", s.listReserves)
		r.Get("/reserves/{asset}", s.getReserve)
		r.Get("/positions/{asset}/{account}", s.getPosition)
		r.Get("/accounts/{account}", s.getAccount)
		r.Post("/supply", s.supply)
		r.Post("/withdraw", s.withdraw)
		r.Post("/borrow", s.borrow)
		r.Post("/repay", s.repay)
		r.Post("/collateral", s.setCollateral)
		r.Post("/emode", s.setEMode)
		r.Post("/liquidate", s.liquidate)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/prices", s.postPrice)
			r.Post("/faucet", s.faucet)
		})
	})
	return r
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.Header.Get("X-Lendpool-Admin-Token") != s.token {
			writeJSONError(w, http.StatusForbidden, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withEngine serialises an engine operation, stamping the current time first.
// The operation runs against a write-buffering transaction that commits only
// on success, so a failure partway through a multi-record mutation leaves the
// persisted ledger untouched.
func (s *Server) withEngine(operation string, fn func() error) error {
	start := time.Now()
	s.mu.Lock()
	txn := s.state.Begin()
	s.engine.SetState(txn)
	s.engine.SetTimestamp(uint64(s.clock().Unix()))
	err := fn()
	if err == nil {
		err = txn.Commit()
	} else {
		txn.Discard()
	}
	s.engine.SetState(s.state)
	s.mu.Unlock()
	s.metrics.Observe(operation, time.Since(start), err)
	return err
}

type txRequest struct {
	Caller     string `json:"caller"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	All        bool   `json:"all"`
	OnBehalfOf string `json:"onBehalfOf"`
	To         string `json:"to"`
	RateMode   string `json:"rateMode"`
	Use        bool   `json:"use"`
	CategoryID uint8  `json:"categoryId"`
}

type liquidateRequest struct {
	Caller          string `json:"caller"`
	CollateralAsset string `json:"collateralAsset"`
	DebtAsset       string `json:"debtAsset"`
	Account         string `json:"account"`
	Amount          string `json:"amount"`
	All             bool   `json:"all"`
	ReceiveShares   bool   `json:"receiveShares"`
}

type priceRequest struct {
	Asset string `json:"asset"`
	Price string `json:"price"`
}

type faucetRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func decodeRequest(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestBodyLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseHexAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmountValue(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || parsed.Sign() <= 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	return parsed, nil
}

func parseAmount(field, value string, all bool) (lending.Amount, error) {
	if all {
		return lending.EntireBalance(), nil
	}
	parsed, err := parseAmountValue(field, value)
	if err != nil {
		return lending.Amount{}, err
	}
	return lending.ExactAmount(parsed), nil
}

func parseRateMode(value string) (lending.RateMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "variable":
		return lending.RateModeVariable, nil
	case "stable":
		return lending.RateModeStable, nil
	default:
		return lending.RateModeNone, fmt.Errorf("rateMode: unknown mode %q", value)
	}
}

// Read handlers go through withEngine as well: the engine stamps its clock on
// every serialised operation, so unlocked reads would race the timestamp.
func (s *Server) listReserves(w http.ResponseWriter, _ *http.Request) {
	var views []*reserveView
	errOp := s.withEngine("list_reserves", func() error {
		slots, err := s.state.ReserveSlots()
		if err != nil {
			return err
		}
		views = make([]*reserveView, 0, len(slots))
		for _, slot := range slots {
			if slot.Tombstoned {
				continue
			}
			reserve, err := s.engine.GetReserveData(slot.Asset)
			if err != nil {
				return err
			}
			views = append(views, newReserveView(reserve))
		}
		return nil
	})
	if errOp != nil {
		s.writeEngineError(w, errOp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reserves": views})
}

func (s *Server) getReserve(w http.ResponseWriter, r *http.Request) {
	asset, err := parseHexAddress("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var reserve *lending.Reserve
	errOp := s.withEngine("get_reserve", func() error {
		var err error
		reserve, err = s.engine.GetReserveData(asset)
		return err
	})
	if errOp != nil {
		s.writeEngineError(w, errOp)
		return
	}
	s.metrics.RecordReserve(reserve)
	writeJSON(w, http.StatusOK, newReserveView(reserve))
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	asset, err := parseHexAddress("asset", chi.URLParam(r, "asset"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseHexAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var (
		position    *lending.Position
		supplyIndex *big.Int
		debtIndex   *big.Int
	)
	errOp := s.withEngine("get_position", func() error {
		var err error
		if position, err = s.engine.GetPositionData(asset, account); err != nil {
			return err
		}
		if supplyIndex, err = s.engine.GetReserveNormalizedIncome(asset); err != nil {
			return err
		}
		debtIndex, err = s.engine.GetReserveNormalizedVariableDebt(asset)
		return err
	})
	if errOp != nil {
		s.writeEngineError(w, errOp)
		return
	}
	writeJSON(w, http.StatusOK, newPositionView(position, supplyIndex, debtIndex))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseHexAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var data *lending.AccountData
	errOp := s.withEngine("account_data", func() error {
		var err error
		data, err = s.engine.GetAccountData(account)
		return err
	})
	if errOp != nil {
		s.writeEngineError(w, errOp)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(data))
}

func (s *Server) supply(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, asset, err := req.callerAndAsset()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmountValue("amount", req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	onBehalfOf := caller
	if strings.TrimSpace(req.OnBehalfOf) != "" {
		if onBehalfOf, err = parseHexAddress("onBehalfOf", req.OnBehalfOf); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.withEngine("supply", func() error {
		return s.engine.Supply(caller, asset, amount, onBehalfOf)
	}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logOp("supply", caller, asset)
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, asset, err := req.callerAndAsset()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount, req.All)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	to := caller
	if strings.TrimSpace(req.To) != "" {
		if to, err = parseHexAddress("to", req.To); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.withEngine("withdraw", func() error {
		return s.engine.Withdraw(caller, asset, amount, to)
	}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logOp("withdraw", caller, asset)
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, asset, err := req.callerAndAsset()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmountValue("amount", req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := parseRateMode(req.RateMode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	onBehalfOf := caller
	if strings.TrimSpace(req.OnBehalfOf) != "" {
		if onBehalfOf, err = parseHexAddress("onBehalfOf", req.OnBehalfOf); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.withEngine("borrow", func() error {
		return s.engine.Borrow(caller, asset, amount, mode, onBehalfOf)
	}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logOp("borrow", caller, asset)
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, asset, err := req.callerAndAsset()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount, req.All)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := parseRateMode(req.RateMode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	onBehalfOf := caller
	if strings.TrimSpace(req.OnBehalfOf) != "" {
		if onBehalfOf, err = parseHexAddress("onBehalfOf", req.OnBehalfOf); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.withEngine("repay", func() error {
		return s.engine.Repay(caller, asset, amount, mode, onBehalfOf)
	}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logOp("repay", caller, asset)
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *Server) setCollateral(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, asset, err := req.callerAndAsset()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.withEngine("set_collateral", func() error {
		return s.engine.SetUsingAsCollateral(caller, asset, req.Use)
	}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *Server) setEMode(w http.ResponseWriter, r *http.Request) {
	var req txRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseHexAddress("caller", req.Caller)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.withEngine("set_emode", func() error {
		return s.engine.SetAccountEMode(caller, req.CategoryID)
	}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseHexAddress("caller", req.Caller)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	collateralAsset, err := parseHexAddress("collateralAsset", req.CollateralAsset)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	debtAsset, err := parseHexAddress("debtAsset", req.DebtAsset)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseHexAddress("account", req.Account)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount, req.All)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var result *lending.LiquidationResult
	errOp := s.withEngine("liquidate", func() error {
		var err error
		result, err = s.engine.Liquidate(caller, collateralAsset, debtAsset, account, amount, req.ReceiveShares)
		return err
	})
	if errOp != nil {
		s.writeEngineError(w, errOp)
		return
	}
	s.metrics.RecordLiquidation(debtAsset.Hex(), collateralAsset.Hex(), result)
	s.log.Info("liquidation executed",
		"caller", caller.Hex(),
		"account", account.Hex(),
		"debtCovered", result.DebtCovered.String(),
		"collateralSeized", result.CollateralSeized.String(),
		"forced", result.Forced,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"debtCovered":      result.DebtCovered.String(),
		"collateralSeized": result.CollateralSeized.String(),
		"protocolFee":      result.ProtocolFee.String(),
		"forced":           result.Forced,
	})
}

func (s *Server) postPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := parseHexAddress("asset", req.Asset)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := parseAmountValue("price", req.Price)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.oracle.SetPrice(asset, price); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func (s *Server) faucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := parseHexAddress("asset", req.Asset)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseHexAddress("account", req.Account)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmountValue("amount", req.Amount)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.vault.Mint(asset, account, amount)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"balance": s.vault.Balance(asset, account).String(),
	})
}

func (req txRequest) callerAndAsset() (common.Address, common.Address, error) {
	caller, err := parseHexAddress("caller", req.Caller)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	asset, err := parseHexAddress("asset", req.Asset)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return caller, asset, nil
}

func (s *Server) logOp(operation string, caller, asset common.Address) {
	s.log.Info("pool operation", "operation", operation, "caller", caller.Hex(), "asset", asset.Hex())
}

func statusOK() map[string]string {
	return map[string]string{"status": "ok"}
}

// writeEngineError maps the engine's error kinds onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lending.ErrReserveNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lending.ErrModulePaused):
		status = http.StatusServiceUnavailable
	default:
		switch lending.Kind(err) {
		case lending.KindValidation:
			status = http.StatusBadRequest
		case lending.KindAuthorization:
			status = http.StatusForbidden
		case lending.KindState:
			status = http.StatusConflict
		case lending.KindArithmetic:
			status = http.StatusInternalServerError
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("pool operation failed", "error", err.Error())
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// logEmitter forwards pool events to the structured logger.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(evt *events.Event) {
	if evt == nil {
		return
	}
	attrs := make([]any, 0, 2+2*len(evt.Attributes))
	attrs = append(attrs, "event", evt.Type)
	for key, value := range evt.Attributes {
		attrs = append(attrs, key, value)
	}
	l.log.Info("pool event", attrs...)
}
