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
	"github.com/ignatzorin/escrow-backend/internal/pkg/money"
	"github.com/ignatzorin/escrow-backend/internal/repository"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// DisputeStore описывает хранилище споров.
type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute, attachmentIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
	ListAttachments(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeAttachment, error)
	ListResolutionNotes(ctx context.Context, disputeID uuid.UUID) ([]models.ResolutionNote, error)
	AddUpdate(ctx context.Context, disputeID, authorID uuid.UUID, notes string, attachmentIDs []uuid.UUID) (*models.Dispute, error)
	StartReview(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error)
	Settle(ctx context.Context, in repository.SettleInput) (*models.Dispute, error)
}

// CreateDisputeInput — параметры открытия спора.
type CreateDisputeInput struct {
	ProjectID           uuid.UUID
	InitiatorID         uuid.UUID
	MilestoneID         *uuid.UUID
	Reason              string
	Description         string
	ContestedAmount     *float64
	SuggestedResolution *string
	AttachmentIDs       []uuid.UUID
}

// ResolveInput — решение арбитра по спору.
type ResolveInput struct {
	DisputeID      uuid.UUID
	ArbiterID      uuid.UUID
	ArbiterRole    string
	Action         string
	Note           string
	RefundAmount   *float64
	ReleaseAmount  *float64
	IdempotencyKey string

	// Документ с реквизитами перевода, обязателен для release и split.
	TransferAttachmentID *uuid.UUID
}

// DisputeDetail — спор вместе с вложениями и журналом решений.
type DisputeDetail struct {
	Dispute     *models.Dispute            `json:"dispute"`
	Attachments []models.DisputeAttachment `json:"attachments"`
	Resolutions []models.ResolutionNote    `json:"resolutions"`
}

// DisputeService ведёт споры от открытия до решения арбитра.
// Заморозка этапа и платежа, дополнение описания и применение решения
// выполняются транзакциями хранилища; сервис отвечает за права доступа,
// валидацию и денежные операции через шлюз.
type DisputeService struct {
	disputes DisputeStore
	payments PaymentStore
	projects ProjectRepository
	gw       gateway.PaymentGateway
	hub      WSNotifier
}

// NewDisputeService создаёт сервис споров.
func NewDisputeService(disputes DisputeStore, payments PaymentStore, projects ProjectRepository, gw gateway.PaymentGateway) *DisputeService {
	return &DisputeService{disputes: disputes, payments: payments, projects: projects, gw: gw}
}

// SetHub устанавливает WebSocket hub для уведомлений.
func (s *DisputeService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// Create открывает спор и замораживает этап или весь проект.
func (s *DisputeService) Create(ctx context.Context, in CreateDisputeInput) (*models.Dispute, error) {
	if err := validation.ValidateDisputeReason(in.Reason); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateDisputeDescription(in.Description); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if in.ContestedAmount != nil {
		if err := money.ValidatePositive(*in.ContestedAmount); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
	}

	project, err := s.projects.GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(in.InitiatorID) {
		return nil, apperror.ErrForbidden
	}

	d := &models.Dispute{
		ProjectID:           in.ProjectID,
		MilestoneID:         in.MilestoneID,
		InitiatorID:         in.InitiatorID,
		Reason:              in.Reason,
		Description:         in.Description,
		ContestedAmount:     in.ContestedAmount,
		SuggestedResolution: in.SuggestedResolution,
	}
	if err := s.disputes.Create(ctx, d, in.AttachmentIDs); err != nil {
		return nil, err
	}

	s.notify(project, "dispute.opened", d)
	return d, nil
}

// Get возвращает спор с вложениями и журналом решений.
func (s *DisputeService) Get(ctx context.Context, disputeID, userID uuid.UUID, role string) (*DisputeDetail, error) {
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, d.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(userID) && role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}

	attachments, err := s.disputes.ListAttachments(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	notes, err := s.disputes.ListResolutionNotes(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	return &DisputeDetail{Dispute: d, Attachments: attachments, Resolutions: notes}, nil
}

// ListByProject возвращает споры проекта.
func (s *DisputeService) ListByProject(ctx context.Context, projectID, userID uuid.UUID, role string) ([]models.Dispute, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(userID) && role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	return s.disputes.ListByProject(ctx, projectID)
}

// ListOpen возвращает очередь нерешённых споров для арбитров.
func (s *DisputeService) ListOpen(ctx context.Context, role string, limit, offset int) ([]models.Dispute, error) {
	if role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.disputes.ListOpen(ctx, limit, offset)
}

// AddUpdate дописывает реплику стороны к описанию спора.
func (s *DisputeService) AddUpdate(ctx context.Context, disputeID, authorID uuid.UUID, role, notes string, attachmentIDs []uuid.UUID) (*models.Dispute, error) {
	if notes == "" && len(attachmentIDs) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "дополнение должно содержать текст или вложения")
	}

	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, d.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.IsParticipant(authorID) && role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}

	updated, err := s.disputes.AddUpdate(ctx, disputeID, authorID, notes, attachmentIDs)
	if err != nil {
		return nil, err
	}
	s.notify(project, "dispute.updated", updated)
	return updated, nil
}

// StartReview — арбитр берёт спор в работу.
func (s *DisputeService) StartReview(ctx context.Context, disputeID, arbiterID uuid.UUID, role string) (*models.Dispute, error) {
	if role != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	d, err := s.disputes.StartReview(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, d.ProjectID)
	if err == nil {
		s.notify(project, "dispute.under_review", d)
	}
	return d, nil
}

// Resolve применяет решение арбитра. Денежные действия проходят через
// платёжный шлюз под ключом идемпотентности: повтор запроса после сбоя
// доводит локальное состояние без второго перевода.
func (s *DisputeService) Resolve(ctx context.Context, in ResolveInput) (*models.Dispute, error) {
	if in.ArbiterRole != models.RoleArbiter {
		return nil, apperror.ErrForbidden
	}
	if in.Note == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "решение должно содержать обоснование")
	}

	d, err := s.disputes.GetByID(ctx, in.DisputeID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, d.ProjectID)
	if err != nil {
		return nil, err
	}

	settle := repository.SettleInput{
		DisputeID:            in.DisputeID,
		ArbiterID:            in.ArbiterID,
		Action:               in.Action,
		Note:                 in.Note,
		DisputeStatus:        models.DisputeStatusResolved,
		TransferAttachmentID: in.TransferAttachmentID,
	}

	switch in.Action {
	case models.ResolutionRefund, models.ResolutionRelease, models.ResolutionSplit:
		updated, err := s.settleWithGateway(ctx, d, &settle, in)
		if err != nil {
			return nil, err
		}
		metrics.DisputeResolutions.WithLabelValues(in.Action).Inc()
		s.notify(project, "dispute.resolved", updated)
		return updated, nil
	case models.ResolutionRedo:
		if d.MilestoneID == nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "доработка применима только к спору по этапу")
		}
		settle.MilestoneStatus = models.MilestoneStatusInProgress
		settle.ClearSubmission = true
		if d.PaymentID != nil {
			settle.PaymentStatus = models.PaymentStatusEscrowed
		}
	case models.ResolutionReject:
		settle.DisputeStatus = models.DisputeStatusCancelled
		if d.MilestoneStatusOriginal != nil {
			settle.MilestoneStatus = *d.MilestoneStatusOriginal
		}
		if d.PaymentID != nil {
			settle.PaymentStatus = models.PaymentStatusEscrowed
		}
	default:
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестное действие: %s", in.Action)
	}

	updated, err := s.disputes.Settle(ctx, settle)
	if err != nil {
		return nil, err
	}
	metrics.DisputeResolutions.WithLabelValues(in.Action).Inc()
	s.notify(project, "dispute.resolved", updated)
	return updated, nil
}

// settleWithGateway выполняет денежную часть решения: возврат, выплату или
// разделение зарезервированной суммы, затем атомарно применяет статусы.
func (s *DisputeService) settleWithGateway(ctx context.Context, d *models.Dispute, settle *repository.SettleInput, in ResolveInput) (*models.Dispute, error) {
	if in.IdempotencyKey == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "требуется ключ идемпотентности")
	}
	if d.MilestoneID == nil || d.PaymentID == nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "денежное решение требует спора по этапу с зарезервированными средствами")
	}
	payment, err := s.payments.GetByMilestoneID(ctx, *d.MilestoneID)
	if err != nil {
		return nil, err
	}

	var kind string
	amount := payment.Amount
	switch in.Action {
	case models.ResolutionRefund:
		kind = models.OperationRefund
		if d.ContestedAmount != nil {
			amount = *d.ContestedAmount
		}
		if money.ToMinorUnits(amount) > money.ToMinorUnits(payment.Amount) {
			return nil, apperror.New(apperror.ErrCodeValidation, "сумма возврата превышает зарезервированную")
		}
		settle.PaymentStatus = models.PaymentStatusRefunded
		settle.RefundAmount = &amount
	case models.ResolutionRelease:
		kind = models.OperationRelease
		if in.TransferAttachmentID == nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "требуется документ с реквизитами перевода")
		}
		settle.PaymentStatus = models.PaymentStatusReleased
		settle.ReleaseAmount = &amount
	case models.ResolutionSplit:
		kind = models.OperationSplit
		if in.TransferAttachmentID == nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "требуется документ с реквизитами перевода")
		}
		if in.RefundAmount == nil || in.ReleaseAmount == nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "разделение требует сумм возврата и выплаты")
		}
		if err := money.ValidatePositive(*in.RefundAmount); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
		if err := money.ValidatePositive(*in.ReleaseAmount); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
		}
		if money.ToMinorUnits(*in.RefundAmount)+money.ToMinorUnits(*in.ReleaseAmount) > money.ToMinorUnits(payment.Amount) {
			return nil, apperror.New(apperror.ErrCodeValidation, "сумма разделения превышает зарезервированную")
		}
		settle.PaymentStatus = models.PaymentStatusReleased
		settle.RefundAmount = in.RefundAmount
		settle.ReleaseAmount = in.ReleaseAmount
	}
	settle.MilestoneStatus = models.MilestoneStatusResolved

	// Повтор уже завершённой операции: деньги переведены, доводим статусы.
	if op, err := s.payments.GetOperation(ctx, in.IdempotencyKey); err == nil {
		switch op.Status {
		case models.OperationStatusCompleted:
			if d.IsTerminal() {
				return d, nil
			}
			settle.RefundTxID, settle.ReleaseTxID = recordedTxIDs(in.Action, op)
			return s.disputes.Settle(ctx, *settle)
		case models.OperationStatusPending:
			return nil, apperror.New(apperror.ErrCodeConflict, "операция ещё выполняется")
		case models.OperationStatusFailed:
			if err := s.payments.ResetOperation(ctx, in.IdempotencyKey); err != nil {
				return nil, err
			}
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if d.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeTerminalState, "спор уже разрешён")
	}

	op := &models.PaymentOperation{
		IdempotencyKey: in.IdempotencyKey,
		PaymentID:      payment.ID,
		Kind:           kind,
		Status:         models.OperationStatusPending,
		Amount:         amount,
	}
	if err := s.payments.BeginOperation(ctx, op); err != nil {
		if errors.Is(err, repository.ErrOperationExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "операция ещё выполняется")
		}
		return nil, err
	}

	var txID, secondTxID *string
	switch in.Action {
	case models.ResolutionRefund:
		id, gwErr := s.gw.Refund(ctx, payment.EscrowRef, amount, in.IdempotencyKey)
		metrics.ObserveGateway(kind, gwErr)
		err = gwErr
		if gwErr == nil {
			txID = &id
			settle.RefundTxID = &id
		}
	case models.ResolutionRelease:
		id, gwErr := s.gw.Release(ctx, payment.EscrowRef, amount, in.IdempotencyKey)
		metrics.ObserveGateway(kind, gwErr)
		err = gwErr
		if gwErr == nil {
			txID = &id
			settle.ReleaseTxID = &id
		}
	case models.ResolutionSplit:
		res, gwErr := s.gw.Split(ctx, payment.EscrowRef, *in.RefundAmount, *in.ReleaseAmount, in.IdempotencyKey)
		metrics.ObserveGateway(kind, gwErr)
		err = gwErr
		if gwErr == nil {
			txID, secondTxID = &res.RefundTxID, &res.ReleaseTxID
			settle.RefundTxID, settle.ReleaseTxID = &res.RefundTxID, &res.ReleaseTxID
		}
	}
	if err != nil {
		if failErr := s.payments.FailOperation(ctx, in.IdempotencyKey); failErr != nil {
			logrus.WithError(failErr).Error("Не удалось пометить операцию шлюза как неуспешную")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeGateway, "платёжный шлюз отклонил перевод")
	}
	if err := s.payments.CompleteOperation(ctx, in.IdempotencyKey, txID, secondTxID); err != nil {
		return nil, err
	}

	return s.disputes.Settle(ctx, *settle)
}

// recordedTxIDs восстанавливает идентификаторы переводов из завершённой
// операции для повторного применения статусов.
func recordedTxIDs(action string, op *models.PaymentOperation) (refundTxID, releaseTxID *string) {
	switch action {
	case models.ResolutionRefund:
		return op.TxID, nil
	case models.ResolutionRelease:
		return nil, op.TxID
	case models.ResolutionSplit:
		return op.TxID, op.SecondTxID
	}
	return nil, nil
}

func (s *DisputeService) notify(project *models.Project, event string, d *models.Dispute) {
	if s.hub == nil {
		return
	}
	data := map[string]interface{}{
		"project_id": d.ProjectID,
		"dispute_id": d.ID,
		"status":     d.Status,
		"reason":     d.Reason,
	}
	if d.MilestoneID != nil {
		data["milestone_id"] = *d.MilestoneID
	}
	_ = s.hub.BroadcastToUser(project.ClientID, event, data)
	_ = s.hub.BroadcastToUser(project.FreelancerID, event, data)
}
