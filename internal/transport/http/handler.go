package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"bankledger/internal/model"
	"bankledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

// Messages returned to clients. The REST contract is Portuguese.
const (
	msgAccountExists       = "Conta já existente!"
	msgAccountNotFound     = "Conta com conta_id não existe!"
	msgInsufficientFunds   = "Saldo insuficiente"
	msgInvalidMethod       = "Forma de pagamento inválida!"
	msgAccountInUse        = "Conta possui transações!"
	msgNotFound            = "Não encontrado."
	msgInvalidBody         = "Invalid request body"
	msgValidationFailed    = "Validation failed"
	msgInternalServerError = "Internal server error"
)

type createAccountRequest struct {
	AccountID *int64           `json:"conta_id" validate:"required,gt=0"`
	Value     *decimal.Decimal `json:"valor" validate:"required,gte=0"`
}

type transactionRequest struct {
	PaymentMethod string           `json:"forma_pagamento" validate:"required"`
	AccountID     *int64           `json:"conta_id" validate:"required,gt=0"`
	Value         *decimal.Decimal `json:"valor" validate:"required,gt=0"`
}

type accountResponse struct {
	AccountID int64       `json:"conta_id"`
	Balance   json.Number `json:"saldo"`
}

func toResponse(acc model.Account) accountResponse {
	return accountResponse{AccountID: acc.ID, Balance: json.Number(acc.Balance.StringFixed(model.MoneyScale))}
}

type Handler struct {
	svc      service.LedgerService
	validate *validator.Validate
}

func NewHandler(svc service.LedgerService) *Handler {
	return &Handler{svc: svc, validate: newValidator()}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/conta", func(r chi.Router) {
		r.Post("/", h.CreateAccount)
		r.Get("/", h.ListAccounts)
		r.Get("/{id}", h.GetAccount)
		r.Delete("/{id}", h.DeleteAccount)
	})
	r.Post("/transacao", h.SubmitTransaction)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.svc.CreateAccount(r.Context(), model.CreateAccountRequest{
		AccountID:      *req.AccountID,
		InitialBalance: *req.Value,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toResponse(*acc))
}

// ListAccounts returns every account, or a single object (possibly {}) when
// filtered by id or conta_id.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	var (
		filter model.AccountFilter
		err    error
	)
	q := r.URL.Query()
	if filter.ID, err = optionalInt(q.Get("id")); err != nil {
		sendErrorResponse(w, msgValidationFailed, http.StatusBadRequest, nil, map[string]string{"id": "Informe um número válido."})
		return
	}
	if filter.AccountID, err = optionalInt(q.Get("conta_id")); err != nil {
		sendErrorResponse(w, msgValidationFailed, http.StatusBadRequest, nil, map[string]string{"conta_id": "Informe um número válido."})
		return
	}

	accounts, err := h.svc.ListAccounts(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if filter.Active() {
		if len(accounts) == 0 {
			respondJSON(w, http.StatusOK, struct{}{})
			return
		}
		respondJSON(w, http.StatusOK, toResponse(accounts[0]))
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, toResponse(acc))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	acc, err := h.svc.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			sendErrorResponse(w, msgNotFound, http.StatusNotFound, nil, nil)
			return
		}
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toResponse(*acc))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			sendErrorResponse(w, msgNotFound, http.StatusNotFound, nil, nil)
			return
		}
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	method, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	acc, err := h.svc.SubmitTransaction(r.Context(), model.TransactionRequest{
		AccountID: *req.AccountID,
		Method:    method,
		Value:     *req.Value,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toResponse(*acc))
}

// decode reads a single JSON object into dst and validates it. It writes the
// error response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		sendErrorResponse(w, msgInvalidBody, http.StatusBadRequest, nil, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		sendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil, nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		sendErrorResponse(w, msgValidationFailed, http.StatusBadRequest, err, nil)
		return false
	}
	return true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInsufficientFunds):
		respondJSON(w, http.StatusNotFound, msgInsufficientFunds)
	case errors.Is(err, model.ErrAccountExists):
		sendErrorResponse(w, msgAccountExists, http.StatusBadRequest, nil, map[string]string{"conta_id": msgAccountExists})
	case errors.Is(err, model.ErrAccountNotFound):
		sendErrorResponse(w, msgAccountNotFound, http.StatusBadRequest, nil, map[string]string{"conta_id": msgAccountNotFound})
	case errors.Is(err, model.ErrInvalidPaymentMethod):
		sendErrorResponse(w, msgInvalidMethod, http.StatusBadRequest, nil, map[string]string{"forma_pagamento": msgInvalidMethod})
	case errors.Is(err, model.ErrAccountInUse):
		sendErrorResponse(w, msgAccountInUse, http.StatusBadRequest, nil, nil)
	case errors.Is(err, model.ErrInvalidAmount):
		sendErrorResponse(w, msgValidationFailed, http.StatusBadRequest, nil, nil)
	default:
		slog.Error("http: request failed", "error", err)
		sendErrorResponse(w, msgInternalServerError, http.StatusInternalServerError, nil, nil)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendErrorResponse(w, msgNotFound, http.StatusNotFound, nil, nil)
		return 0, false
	}
	return id, true
}

func optionalInt(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
