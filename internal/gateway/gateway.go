package gateway

import (
	"context"
	"errors"
	"fmt"
)

// PaymentGateway описывает внешний платёжный процессор, который держит
// средства в escrow и исполняет переводы. Ядро никогда не считает операцию
// успешной без явного подтверждения шлюза.
//
// Каждый вызов несёт ключ идемпотентности, сгенерированный вызывающей
// стороной: повтор после сетевого сбоя не должен провести расчёт дважды.
type PaymentGateway interface {
	// Escrow резервирует средства и возвращает ссылку на резерв.
	Escrow(ctx context.Context, amount float64, currency, idempotencyKey string) (string, error)
	// Release переводит средства исполнителю по ссылке резерва.
	Release(ctx context.Context, ref string, amount float64, idempotencyKey string) (string, error)
	// Refund возвращает средства плательщику.
	Refund(ctx context.Context, ref string, amount float64, idempotencyKey string) (string, error)
	// Split делит резерв: часть возвращается плательщику, часть уходит исполнителю.
	Split(ctx context.Context, ref string, refundAmount, releaseAmount float64, idempotencyKey string) (SplitResult, error)
}

// SplitResult содержит идентификаторы обеих транзакций раздельного расчёта.
type SplitResult struct {
	RefundTxID  string `json:"refund_tx_id"`
	ReleaseTxID string `json:"release_tx_id"`
}

// Error отличает сбой шлюза от локальных ошибок: вызывающая сторона ретраит
// его с тем же ключом идемпотентности.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("gateway: %s: %s (caused by: %v)", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("gateway: %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsGatewayError сообщает, вызвана ли ошибка платёжным шлюзом.
func IsGatewayError(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr)
}
