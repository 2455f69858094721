package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClient_Escrow_Success(t *testing.T) {
	var gotKey, gotAuth string
	var gotBody escrowRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/escrow", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(escrowResponse{Reference: "esc_42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	ref, err := c.Escrow(context.Background(), 1000, "USD", "key-1")

	assert.NoError(t, err)
	assert.Equal(t, "esc_42", ref)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, 1000.0, gotBody.Amount)
	assert.Equal(t, "USD", gotBody.Currency)
}

func TestClient_Escrow_EmptyReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(escrowResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.Escrow(context.Background(), 1000, "USD", "key-1")

	var gwErr *Error
	assert.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "escrow", gwErr.Op)
}

func TestClient_Release_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "insufficient reserve"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	_, err := c.Release(context.Background(), "esc_42", 1000, "key-2")

	var gwErr *Error
	assert.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "release", gwErr.Op)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
}

func TestClient_Split_Success(t *testing.T) {
	var gotBody splitRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/split", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(SplitResult{RefundTxID: "tx_r", ReleaseTxID: "tx_p"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	res, err := c.Split(context.Background(), "esc_42", 400, 600, "key-3")

	assert.NoError(t, err)
	assert.Equal(t, "tx_r", res.RefundTxID)
	assert.Equal(t, "tx_p", res.ReleaseTxID)
	assert.Equal(t, 400.0, gotBody.RefundAmount)
	assert.Equal(t, 600.0, gotBody.ReleaseAmount)
}

func TestClient_Split_PartialConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(SplitResult{RefundTxID: "tx_r"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	_, err := c.Split(context.Background(), "esc_42", 400, 600, "key-3")

	var gwErr *Error
	assert.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "split", gwErr.Op)
}

func TestClient_Refund_NoBaseURL(t *testing.T) {
	c := NewClient("", "secret", 5*time.Second)
	_, err := c.Refund(context.Background(), "esc_42", 100, "key-4")

	var gwErr *Error
	assert.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "refund", gwErr.Op)
}
