package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/database"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/models"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/proxy"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/service"
)

// Minter funds sandbox accounts.
type Minter interface {
	RegisterToken(token common.Address)
	Mint(token, account common.Address, amount *big.Int) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db       *database.DB
	engine   *proxy.ConversionProxy
	deposits *service.DepositService
	minter   Minter
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	db *database.DB,
	engine *proxy.ConversionProxy,
	deposits *service.DepositService,
	minter Minter,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		db:       db,
		engine:   engine,
		deposits: deposits,
		minter:   minter,
		logger:   logger,
	}
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	}
	respondJSON(w, http.StatusOK, response)
}

// ==================== Deposits ====================

// HandleDirectDeposit handles POST /api/v1/deposits/direct
// Forwards a stablecoin deposit to the bridge without conversion
func (h *Handler) HandleDirectDeposit(w http.ResponseWriter, r *http.Request) {
	var req DirectDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sender, err := parseAddress("sender", req.Sender)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	starkKey, positionID, err := parseTarget(req.StarkKey, req.PositionID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	h.logger.Info("Direct deposit requested",
		zap.String("sender", sender.Hex()),
		zap.String("amount", amount.String()))

	deposit, depositErr := h.deposits.SubmitDirect(r.Context(), service.DirectParams{
		Sender:                sender,
		Amount:                amount,
		StarkKey:              starkKey,
		PositionID:            positionID,
		RegistrationSignature: common.FromHex(req.RegistrationSignature),
	})
	h.respondDeposit(w, deposit, depositErr)
}

// HandleConvertDeposit handles POST /api/v1/deposits/convert
// Swaps an ERC-20 deposit to the stablecoin and forwards the measured output
func (h *Handler) HandleConvertDeposit(w http.ResponseWriter, r *http.Request) {
	params, ok := h.decodeConvertRequest(w, r, true)
	if !ok {
		return
	}

	h.logger.Info("Converted deposit requested",
		zap.String("sender", params.Sender.Hex()),
		zap.String("source_token", params.SourceToken.Hex()),
		zap.String("source_amount", params.SourceAmount.String()))

	deposit, depositErr := h.deposits.SubmitERC20(r.Context(), params)
	h.respondDeposit(w, deposit, depositErr)
}

// HandleConvertNativeDeposit handles POST /api/v1/deposits/convert-native
// Swaps a native-currency deposit to the stablecoin and forwards the output
func (h *Handler) HandleConvertNativeDeposit(w http.ResponseWriter, r *http.Request) {
	params, ok := h.decodeConvertRequest(w, r, false)
	if !ok {
		return
	}

	h.logger.Info("Native converted deposit requested",
		zap.String("sender", params.Sender.Hex()),
		zap.String("value", params.SourceAmount.String()))

	deposit, depositErr := h.deposits.SubmitNative(r.Context(), params)
	h.respondDeposit(w, deposit, depositErr)
}

func (h *Handler) decodeConvertRequest(w http.ResponseWriter, r *http.Request, wantToken bool) (service.ConvertParams, bool) {
	var req ConvertDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return service.ConvertParams{}, false
	}

	sender, err := parseAddress("sender", req.Sender)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return service.ConvertParams{}, false
	}

	var sourceToken common.Address
	if wantToken {
		sourceToken, err = parseAddress("source_token", req.SourceToken)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), nil)
			return service.ConvertParams{}, false
		}
	}

	amount, err := parseAmount("source_amount", req.SourceAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return service.ConvertParams{}, false
	}

	var minOut *big.Int
	if req.MinStablecoinAmount != "" {
		minOut, err = parseAmount("min_stablecoin_amount", req.MinStablecoinAmount)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), nil)
			return service.ConvertParams{}, false
		}
	}

	starkKey, positionID, err := parseTarget(req.StarkKey, req.PositionID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return service.ConvertParams{}, false
	}

	return service.ConvertParams{
		Sender:                sender,
		SourceToken:           sourceToken,
		SourceAmount:          amount,
		MinStablecoinAmount:   minOut,
		StarkKey:              starkKey,
		PositionID:            positionID,
		RegistrationSignature: common.FromHex(req.RegistrationSignature),
	}, true
}

func (h *Handler) respondDeposit(w http.ResponseWriter, deposit *models.Deposit, depositErr error) {
	if deposit == nil {
		respondError(w, http.StatusBadRequest, "Deposit rejected", depositErr)
		return
	}

	status := http.StatusOK
	if depositErr != nil {
		status = depositStatusCode(depositErr)
	}
	respondJSON(w, status, toDepositResponse(*deposit))
}

// HandleGetDeposit handles GET /api/v1/deposits/{depositId}
func (h *Handler) HandleGetDeposit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	depositID := vars["depositId"]

	deposit, err := h.db.GetDeposit(r.Context(), depositID)
	if err != nil {
		h.logger.Error("Failed to get deposit",
			zap.String("deposit_id", depositID),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get deposit", err)
		return
	}
	if deposit == nil {
		respondError(w, http.StatusNotFound, "Deposit not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, toDepositResponse(*deposit))
}

// HandleGetSenderDeposits handles GET /api/v1/deposits/sender/{address}
func (h *Handler) HandleGetSenderDeposits(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sender, err := parseAddress("address", vars["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	limit, offset := parsePagination(r)

	deposits, err := h.db.GetDepositsBySender(r.Context(), sender.Hex(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to get sender deposits",
			zap.String("sender", sender.Hex()),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get deposits", err)
		return
	}

	response := GetDepositsResponse{Deposits: make([]DepositResponse, 0, len(deposits))}
	for _, deposit := range deposits {
		response.Deposits = append(response.Deposits, toDepositResponse(deposit))
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleGetDepositsByStatus handles GET /api/v1/deposits/status/{status}
// Lists deposit attempts filtered by terminal outcome
func (h *Handler) HandleGetDepositsByStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	status, err := parseDepositStatus(vars["status"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	limit, offset := parsePagination(r)

	deposits, err := h.db.GetDepositsByStatus(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("Failed to get deposits by status",
			zap.String("status", string(status)),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get deposits", err)
		return
	}

	response := GetDepositsResponse{Deposits: make([]DepositResponse, 0, len(deposits))}
	for _, deposit := range deposits {
		response.Deposits = append(response.Deposits, toDepositResponse(deposit))
	}
	respondJSON(w, http.StatusOK, response)
}

// ==================== Conversion Events ====================

// HandleGetConversionEvents handles GET /api/v1/events
func (h *Handler) HandleGetConversionEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	events, err := h.db.GetConversionEvents(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to get conversion events", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get events", err)
		return
	}
	respondJSON(w, http.StatusOK, toEventsResponse(events))
}

// HandleGetSenderConversionEvents handles GET /api/v1/events/sender/{address}
func (h *Handler) HandleGetSenderConversionEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sender, err := parseAddress("address", vars["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	limit, offset := parsePagination(r)

	events, err := h.db.GetConversionEventsBySender(r.Context(), sender.Hex(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to get sender conversion events",
			zap.String("sender", sender.Hex()),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get events", err)
		return
	}
	respondJSON(w, http.StatusOK, toEventsResponse(events))
}

// ==================== Faucet ====================

// HandleFaucet handles POST /api/v1/faucet
// Mints sandbox funds; unknown tokens are registered on first use
func (h *Handler) HandleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := parseAddress("account", req.Account)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	token := proxy.NativeAssetAddress
	if req.Token != "" {
		token, err = parseAddress("token", req.Token)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	h.minter.RegisterToken(token)
	if err := h.minter.Mint(token, account, amount); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Failed to mint funds", err)
		return
	}

	h.logger.Info("Faucet mint",
		zap.String("account", account.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()))
	respondJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

// ==================== Admin ====================

// HandleGetStatus handles GET /api/v1/admin/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Paused: h.engine.Paused(),
		Owner:  h.engine.Owner().Hex(),
	})
}

// HandleTogglePause handles POST /api/v1/admin/pause
func (h *Handler) HandleTogglePause(w http.ResponseWriter, r *http.Request) {
	var req AdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.engine.TogglePause(proxy.Call{Caller: caller}); err != nil {
		respondEngineError(w, "Failed to toggle pause", err)
		return
	}
	h.HandleGetStatus(w, r)
}

// HandleApproveSwap handles POST /api/v1/admin/approve-swap
func (h *Handler) HandleApproveSwap(w http.ResponseWriter, r *http.Request) {
	var req ApproveSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	exchangeAddr, err := parseAddress("exchange", req.Exchange)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.engine.ApproveSwap(r.Context(), proxy.Call{Caller: caller}, exchangeAddr, token); err != nil {
		respondEngineError(w, "Failed to approve swap", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// HandleTransferOwnership handles POST /api/v1/admin/ownership/transfer
func (h *Handler) HandleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req TransferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	newOwner, err := parseAddress("new_owner", req.NewOwner)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.engine.TransferOwnership(proxy.Call{Caller: caller}, newOwner); err != nil {
		respondEngineError(w, "Failed to transfer ownership", err)
		return
	}
	h.HandleGetStatus(w, r)
}

// HandleRenounceOwnership handles POST /api/v1/admin/ownership/renounce
func (h *Handler) HandleRenounceOwnership(w http.ResponseWriter, r *http.Request) {
	var req AdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.engine.RenounceOwnership(proxy.Call{Caller: caller}); err != nil {
		respondEngineError(w, "Failed to renounce ownership", err)
		return
	}
	h.HandleGetStatus(w, r)
}

// ==================== Helper Functions ====================

func toDepositResponse(deposit models.Deposit) DepositResponse {
	return DepositResponse{
		DepositID:        deposit.ID,
		Sender:           deposit.Sender,
		Kind:             deposit.Kind,
		SourceToken:      deposit.SourceToken,
		SourceAmount:     deposit.SourceAmount,
		StablecoinAmount: deposit.StablecoinAmount,
		StarkKey:         deposit.StarkKey,
		PositionID:       deposit.PositionID,
		Status:           deposit.Status,
		Error:            deposit.ErrorMessage,
	}
}

func toEventsResponse(events []models.ConversionEvent) GetConversionEventsResponse {
	response := GetConversionEventsResponse{Events: make([]ConversionEventResponse, 0, len(events))}
	for _, event := range events {
		response.Events = append(response.Events, ConversionEventResponse{
			ID:               event.ID,
			Sender:           event.Sender,
			SourceToken:      event.SourceToken,
			SourceAmount:     event.SourceAmount,
			StablecoinAmount: event.StablecoinAmount,
			OccurredAt:       event.OccurredAt,
		})
	}
	return response
}

func parseAddress(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, fmt.Errorf("%s is required", name)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address", name)
	}
	return common.HexToAddress(value), nil
}

func parseDepositStatus(value string) (models.DepositStatus, error) {
	switch status := models.DepositStatus(strings.ToUpper(value)); status {
	case models.DepositStatusSucceeded, models.DepositStatusFailed:
		return status, nil
	}
	return "", fmt.Errorf("invalid status: must be SUCCEEDED or FAILED")
}

func parseAmount(name, value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: must be a base-10 integer", name)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive", name)
	}
	return amount, nil
}

func parseTarget(starkKeyHex, positionIDStr string) (*big.Int, *big.Int, error) {
	if starkKeyHex == "" {
		return nil, nil, fmt.Errorf("stark_key is required")
	}
	starkKey, ok := new(big.Int).SetString(trimHexPrefix(starkKeyHex), 16)
	if !ok || starkKey.Sign() == 0 {
		return nil, nil, fmt.Errorf("invalid stark_key: must be a non-zero hex integer")
	}

	if positionIDStr == "" {
		return nil, nil, fmt.Errorf("position_id is required")
	}
	positionID, ok := new(big.Int).SetString(positionIDStr, 10)
	if !ok || positionID.Sign() < 0 {
		return nil, nil, fmt.Errorf("invalid position_id: must be a non-negative integer")
	}
	return starkKey, positionID, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}
	return limit, offset
}

// depositStatusCode maps engine failures onto HTTP statuses. Failed
// attempts still return the recorded deposit body.
func depositStatusCode(err error) int {
	switch {
	case errors.Is(err, proxy.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, proxy.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, proxy.ErrBelowMinimum), errors.Is(err, proxy.ErrBalanceDecreased):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusUnprocessableEntity
	}
}

func respondEngineError(w http.ResponseWriter, message string, err error) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, proxy.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, proxy.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, proxy.ErrReentrantCall):
		status = http.StatusConflict
	}
	respondError(w, status, message, err)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log error but can't send response since headers already written
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	response := ErrorResponse{
		Error:   message,
		Message: errorMsg,
	}

	respondJSON(w, statusCode, response)
}
