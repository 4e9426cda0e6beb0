package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bankledger/internal/repository"
	"bankledger/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(service.NewLedger(repository.NewMemoryStore(), nil))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	dec := json.NewDecoder(w.Body)
	dec.UseNumber()
	require.NoError(t, dec.Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	w := do(t, newTestRouter(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestCreateAccount(t *testing.T) {
	r := newTestRouter(t)

	t.Run("created", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/conta", `{"conta_id": 1, "valor": 500}`)
		require.Equal(t, http.StatusCreated, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, json.Number("1"), body["conta_id"])
		assert.Equal(t, json.Number("500.00"), body["saldo"])
	})

	t.Run("duplicate", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/conta", `{"conta_id": 1, "valor": 10}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, map[string]any{"conta_id": "Conta já existente!"}, body["details"])

		w = do(t, r, http.MethodGet, "/conta/1", "")
		assert.Equal(t, json.Number("500.00"), decodeBody(t, w)["saldo"])
	})

	t.Run("missing fields", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/conta", `{"conta_id": 2}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		details := decodeBody(t, w)["details"].(map[string]any)
		assert.Contains(t, details, "valor")
	})

	t.Run("zero balance is allowed", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/conta", `{"conta_id": 3, "valor": 0}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/conta", `{"conta_id": `)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSubmitTransaction(t *testing.T) {
	r := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/conta", `{"conta_id": 1, "valor": 500}`).Code)

	steps := []struct {
		body  string
		saldo string
	}{
		{`{"forma_pagamento": "D", "conta_id": 1, "valor": 50}`, "448.50"},
		{`{"forma_pagamento": "C", "conta_id": 1, "valor": 100}`, "343.50"},
		{`{"forma_pagamento": "P", "conta_id": 1, "valor": 75}`, "268.50"},
	}
	for _, step := range steps {
		w := do(t, r, http.MethodPost, "/transacao", step.body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, json.Number(step.saldo), decodeBody(t, w)["saldo"])
	}

	t.Run("insufficient funds", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/transacao", `{"forma_pagamento": "P", "conta_id": 1, "valor": 300}`)
		require.Equal(t, http.StatusNotFound, w.Code)
		var msg string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
		assert.Equal(t, "Saldo insuficiente", msg)
	})

	t.Run("unknown account", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/transacao", `{"forma_pagamento": "P", "conta_id": 77, "valor": 1}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, map[string]any{"conta_id": "Conta com conta_id não existe!"}, body["details"])
	})

	t.Run("invalid payment method", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/transacao", `{"forma_pagamento": "X", "conta_id": 1, "valor": 1}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		details := decodeBody(t, w)["details"].(map[string]any)
		assert.Contains(t, details, "forma_pagamento")
	})

	t.Run("non positive value", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/transacao", `{"forma_pagamento": "P", "conta_id": 1, "valor": 0}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		details := decodeBody(t, w)["details"].(map[string]any)
		assert.Equal(t, "Field Validation Failed on 'gt' tag", details["valor"])
	})
}

func TestListAccounts(t *testing.T) {
	r := newTestRouter(t)
	for _, body := range []string{`{"conta_id": 2, "valor": 20}`, `{"conta_id": 1, "valor": 10}`} {
		require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/conta", body).Code)
	}

	w := do(t, r, http.MethodGet, "/conta", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []accountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].AccountID)

	w = do(t, r, http.MethodGet, "/conta?conta_id=2", "")
	assert.Equal(t, json.Number("20.00"), decodeBody(t, w)["saldo"])

	w = do(t, r, http.MethodGet, "/conta?id=9", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w))

	w = do(t, r, http.MethodGet, "/conta?id=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAndDeleteAccount(t *testing.T) {
	r := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/conta", `{"conta_id": 1, "valor": 10}`).Code)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/conta", `{"conta_id": 2, "valor": 10}`).Code)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/transacao", `{"forma_pagamento": "P", "conta_id": 1, "valor": 1}`).Code)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/conta/5", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodDelete, "/conta/1", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/conta/2", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodDelete, "/conta/2", "").Code)
}
