package yookassa

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreatePayment(t *testing.T) {
	var gotAuthUser, gotAuthPass, gotIdempotenceKey string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments", r.URL.Path)
		gotAuthUser, gotAuthPass, _ = r.BasicAuth()
		gotIdempotenceKey = r.Header.Get("Idempotence-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "pay-1",
			"status": "pending",
			"confirmation": {"type": "embedded", "confirmation_token": "ct-abc"},
			"amount": {"value": "790.00", "currency": "RUB"}
		}`))
	}))
	defer server.Close()

	client := NewClient("shop", "secret", slog.New(slog.NewTextHandler(io.Discard, nil))).WithBaseURL(server.URL)

	payment, err := client.CreatePayment(context.Background(), "790.00", "RUB", "Старт: 1000 credits", map[string]string{"user_id": "7"})
	require.NoError(t, err)
	require.Equal(t, "pay-1", payment.ID)
	require.Equal(t, "pending", payment.Status)
	require.Equal(t, "ct-abc", payment.Confirmation.ConfirmationToken)

	require.Equal(t, "shop", gotAuthUser)
	require.Equal(t, "secret", gotAuthPass)
	require.NotEmpty(t, gotIdempotenceKey)
	require.Equal(t, "embedded", gotBody["confirmation"].(map[string]any)["type"])
	require.Equal(t, true, gotBody["capture"])
}

func TestGetPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/pay-9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "pay-9", "status": "succeeded"}`))
	}))
	defer server.Close()

	client := NewClient("shop", "secret", slog.New(slog.NewTextHandler(io.Discard, nil))).WithBaseURL(server.URL)

	payment, err := client.GetPayment(context.Background(), "pay-9")
	require.NoError(t, err)
	require.Equal(t, "succeeded", payment.Status)
}

func TestErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type": "error", "code": "invalid_credentials"}`))
	}))
	defer server.Close()

	client := NewClient("shop", "wrong", slog.New(slog.NewTextHandler(io.Discard, nil))).WithBaseURL(server.URL)

	_, err := client.GetPayment(context.Background(), "pay-1")
	require.Error(t, err)
}
