package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/metrics"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// PaymentStore описывает хранилище платежей и журнала операций шлюза.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByMilestoneID(ctx context.Context, milestoneID uuid.UUID) (*models.Payment, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Payment, error)
	GetOperation(ctx context.Context, key string) (*models.PaymentOperation, error)
	BeginOperation(ctx context.Context, op *models.PaymentOperation) error
	CompleteOperation(ctx context.Context, key string, txID, secondTxID *string) error
	FailOperation(ctx context.Context, key string) error
	ResetOperation(ctx context.Context, key string) error
	FinalizeRelease(ctx context.Context, paymentID uuid.UUID, txID string) (*models.Payment, error)
}

// PaymentService резервирует и выплачивает средства через платёжный шлюз.
// Каждое обращение к шлюзу заключено в операцию с ключом идемпотентности:
// повтор запроса с тем же ключом возвращает сохранённый результат.
type PaymentService struct {
	payments   PaymentStore
	milestones MilestoneRepository
	projects   ProjectRepository
	gw         gateway.PaymentGateway
	hub        WSNotifier
}

// NewPaymentService создаёт платёжный сервис.
func NewPaymentService(payments PaymentStore, milestones MilestoneRepository, projects ProjectRepository, gw gateway.PaymentGateway) *PaymentService {
	return &PaymentService{payments: payments, milestones: milestones, projects: projects, gw: gw}
}

// SetHub устанавливает WebSocket hub для уведомлений.
func (s *PaymentService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// Fund резервирует средства по этапу. Повторный вызов с тем же ключом
// идемпотентности не создаёт второй резерв.
func (s *PaymentService) Fund(ctx context.Context, milestoneID, clientID uuid.UUID, method, idempotencyKey string) (*models.Payment, error) {
	if idempotencyKey == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "требуется ключ идемпотентности")
	}
	switch method {
	case models.PaymentMethodCard, models.PaymentMethodTransfer, models.PaymentMethodBalance:
	default:
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестный способ оплаты: %s", method)
	}

	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	if models.IsProjectFrozen(project.Status) {
		return nil, apperror.New(apperror.ErrCodeFrozen, "проект заморожен открытым спором")
	}
	if models.IsMilestoneTerminal(m.Status) || models.IsMilestoneFrozen(m.Status) {
		return nil, apperror.New(apperror.ErrCodeTerminalState, "этап уже закрыт или заморожен")
	}
	if _, err := s.payments.GetByMilestoneID(ctx, milestoneID); err == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "средства по этапу уже зарезервированы")
	} else if !errors.Is(err, apperror.ErrPaymentNotFound) {
		return nil, err
	}

	// Повтор завершённой операции возвращает уже созданный платёж.
	if op, err := s.payments.GetOperation(ctx, idempotencyKey); err == nil {
		switch op.Status {
		case models.OperationStatusCompleted:
			return s.payments.GetByMilestoneID(ctx, milestoneID)
		case models.OperationStatusPending:
			return nil, apperror.New(apperror.ErrCodeConflict, "операция ещё выполняется")
		case models.OperationStatusFailed:
			if err := s.payments.ResetOperation(ctx, idempotencyKey); err != nil {
				return nil, err
			}
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	paymentID := uuid.New()
	op := &models.PaymentOperation{
		IdempotencyKey: idempotencyKey,
		PaymentID:      paymentID,
		Kind:           models.OperationEscrow,
		Status:         models.OperationStatusPending,
		Amount:         m.Amount,
	}
	if err := s.payments.BeginOperation(ctx, op); err != nil {
		if errors.Is(err, repository.ErrOperationExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "операция ещё выполняется")
		}
		return nil, err
	}

	ref, err := s.gw.Escrow(ctx, m.Amount, project.Currency, idempotencyKey)
	metrics.ObserveGateway(models.OperationEscrow, err)
	if err != nil {
		if failErr := s.payments.FailOperation(ctx, idempotencyKey); failErr != nil {
			logrus.WithError(failErr).Error("Не удалось пометить операцию шлюза как неуспешную")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "платёжный шлюз отклонил резервирование")
	}

	payment := &models.Payment{
		ID:          paymentID,
		ProjectID:   project.ID,
		MilestoneID: milestoneID,
		Amount:      m.Amount,
		Currency:    project.Currency,
		Method:      method,
		Status:      models.PaymentStatusEscrowed,
		EscrowRef:   ref,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.payments.CompleteOperation(ctx, idempotencyKey, &ref, nil); err != nil {
		return nil, err
	}

	s.notify(project, "payment.escrowed", payment)
	return payment, nil
}

// Pay выплачивает средства по принятому этапу. Отказ шлюза оставляет этап
// принятым: выплату можно повторить с новым или тем же ключом.
func (s *PaymentService) Pay(ctx context.Context, milestoneID, clientID uuid.UUID, idempotencyKey string) (*models.Payment, error) {
	if idempotencyKey == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "требуется ключ идемпотентности")
	}

	m, err := s.milestones.GetByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.ClientID != clientID {
		return nil, apperror.ErrForbidden
	}
	// Спор на уровне проекта запрещает выплату даже по принятому этапу:
	// резерв остаётся до решения арбитра.
	if models.IsProjectFrozen(project.Status) {
		return nil, apperror.New(apperror.ErrCodeFrozen, "проект заморожен открытым спором")
	}
	if m.Status != models.MilestoneStatusApproved {
		return nil, apperror.Newf(apperror.ErrCodeConflict, "выплата возможна только по принятому этапу, текущий статус: %s", m.Status)
	}

	payment, err := s.payments.GetByMilestoneID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusEscrowed {
		return nil, apperror.Newf(apperror.ErrCodeConflict, "средства не в резерве, статус платежа: %s", payment.Status)
	}

	if op, err := s.payments.GetOperation(ctx, idempotencyKey); err == nil {
		switch op.Status {
		case models.OperationStatusCompleted:
			// Шлюз уже перевёл деньги; довести локальное состояние, если
			// предыдущий вызов упал между подтверждением и фиксацией.
			if op.TxID == nil {
				return nil, apperror.New(apperror.ErrCodeInternal, "операция завершена без идентификатора перевода")
			}
			return s.payments.FinalizeRelease(ctx, payment.ID, *op.TxID)
		case models.OperationStatusPending:
			return nil, apperror.New(apperror.ErrCodeConflict, "операция ещё выполняется")
		case models.OperationStatusFailed:
			if err := s.payments.ResetOperation(ctx, idempotencyKey); err != nil {
				return nil, err
			}
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	op := &models.PaymentOperation{
		IdempotencyKey: idempotencyKey,
		PaymentID:      payment.ID,
		Kind:           models.OperationRelease,
		Status:         models.OperationStatusPending,
		Amount:         payment.Amount,
	}
	if err := s.payments.BeginOperation(ctx, op); err != nil {
		if errors.Is(err, repository.ErrOperationExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "операция ещё выполняется")
		}
		return nil, err
	}

	txID, err := s.gw.Release(ctx, payment.EscrowRef, payment.Amount, idempotencyKey)
	metrics.ObserveGateway(models.OperationRelease, err)
	if err != nil {
		if failErr := s.payments.FailOperation(ctx, idempotencyKey); failErr != nil {
			logrus.WithError(failErr).Error("Не удалось пометить операцию шлюза как неуспешную")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "платёжный шлюз отклонил выплату")
	}

	if err := s.payments.CompleteOperation(ctx, idempotencyKey, &txID, nil); err != nil {
		return nil, err
	}
	updated, err := s.payments.FinalizeRelease(ctx, payment.ID, txID)
	if err != nil {
		return nil, err
	}
	metrics.MilestonesPaid.Inc()

	s.notify(project, "milestone.paid", updated)
	return updated, nil
}

// ListByProject возвращает платежи проекта участнику или арбитру.
func (s *PaymentService) ListByProject(ctx context.Context, projectID, userID uuid.UUID, role string) ([]models.Payment, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(userID) && role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	return s.payments.ListByProject(ctx, projectID)
}

func (s *PaymentService) notify(project *models.Project, event string, payment *models.Payment) {
	if s.hub == nil {
		return
	}
	data := map[string]interface{}{
		"project_id":   payment.ProjectID,
		"milestone_id": payment.MilestoneID,
		"payment_id":   payment.ID,
		"status":       payment.Status,
		"amount":       payment.Amount,
	}
	_ = s.hub.BroadcastToUser(project.ClientID, event, data)
	_ = s.hub.BroadcastToUser(project.FreelancerID, event, data)
}
