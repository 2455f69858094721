package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client реализует PaymentGateway поверх REST API процессора.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type escrowRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type escrowResponse struct {
	Reference string `json:"reference"`
}

type transferRequest struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
}

type transferResponse struct {
	TxID string `json:"tx_id"`
}

type splitRequest struct {
	Reference     string  `json:"reference"`
	RefundAmount  float64 `json:"refund_amount"`
	ReleaseAmount float64 `json:"release_amount"`
}

// Escrow резервирует средства на стороне процессора.
func (c *Client) Escrow(ctx context.Context, amount float64, currency, idempotencyKey string) (string, error) {
	var resp escrowResponse
	if err := c.post(ctx, "escrow", escrowRequest{Amount: amount, Currency: currency}, idempotencyKey, &resp); err != nil {
		return "", err
	}
	if resp.Reference == "" {
		return "", &Error{Op: "escrow", Message: "процессор не вернул ссылку на резерв"}
	}
	return resp.Reference, nil
}

// Release переводит средства исполнителю.
func (c *Client) Release(ctx context.Context, ref string, amount float64, idempotencyKey string) (string, error) {
	var resp transferResponse
	if err := c.post(ctx, "release", transferRequest{Reference: ref, Amount: amount}, idempotencyKey, &resp); err != nil {
		return "", err
	}
	if resp.TxID == "" {
		return "", &Error{Op: "release", Message: "процессор не подтвердил транзакцию"}
	}
	return resp.TxID, nil
}

// Refund возвращает средства плательщику.
func (c *Client) Refund(ctx context.Context, ref string, amount float64, idempotencyKey string) (string, error) {
	var resp transferResponse
	if err := c.post(ctx, "refund", transferRequest{Reference: ref, Amount: amount}, idempotencyKey, &resp); err != nil {
		return "", err
	}
	if resp.TxID == "" {
		return "", &Error{Op: "refund", Message: "процессор не подтвердил транзакцию"}
	}
	return resp.TxID, nil
}

// Split выполняет раздельный расчёт одним вызовом процессора.
func (c *Client) Split(ctx context.Context, ref string, refundAmount, releaseAmount float64, idempotencyKey string) (SplitResult, error) {
	var resp SplitResult
	if err := c.post(ctx, "split", splitRequest{Reference: ref, RefundAmount: refundAmount, ReleaseAmount: releaseAmount}, idempotencyKey, &resp); err != nil {
		return SplitResult{}, err
	}
	if resp.RefundTxID == "" || resp.ReleaseTxID == "" {
		return SplitResult{}, &Error{Op: "split", Message: "процессор не подтвердил обе транзакции"}
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, op string, payload any, idempotencyKey string, out any) error {
	if c.baseURL == "" {
		return &Error{Op: op, Message: "baseURL не задан"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Op: op, Message: "не удалось сериализовать запрос", Cause: err}
	}

	url := c.baseURL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	url += op

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: op, Message: "не удалось собрать запрос", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Message: "сетевой сбой", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("код ответа %d: %v", resp.StatusCode, errorBody),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Message: "не удалось разобрать ответ", Cause: err}
	}
	return nil
}
