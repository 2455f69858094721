package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type mockPaymentStore struct {
	mock.Mock
}

func (m *mockPaymentStore) Create(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPaymentStore) GetByMilestoneID(ctx context.Context, milestoneID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, milestoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Payment, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]models.Payment), args.Error(1)
}

func (m *mockPaymentStore) GetOperation(ctx context.Context, key string) (*models.PaymentOperation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentOperation), args.Error(1)
}

func (m *mockPaymentStore) BeginOperation(ctx context.Context, op *models.PaymentOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *mockPaymentStore) CompleteOperation(ctx context.Context, key string, txID, secondTxID *string) error {
	args := m.Called(ctx, key, txID, secondTxID)
	return args.Error(0)
}

func (m *mockPaymentStore) FailOperation(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockPaymentStore) ResetOperation(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockPaymentStore) FinalizeRelease(ctx context.Context, paymentID uuid.UUID, txID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Escrow(ctx context.Context, amount float64, currency, idempotencyKey string) (string, error) {
	args := m.Called(ctx, amount, currency, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Release(ctx context.Context, ref string, amount float64, idempotencyKey string) (string, error) {
	args := m.Called(ctx, ref, amount, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, ref string, amount float64, idempotencyKey string) (string, error) {
	args := m.Called(ctx, ref, amount, idempotencyKey)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Split(ctx context.Context, ref string, refundAmount, releaseAmount float64, idempotencyKey string) (gateway.SplitResult, error) {
	args := m.Called(ctx, ref, refundAmount, releaseAmount, idempotencyKey)
	return args.Get(0).(gateway.SplitResult), args.Error(1)
}

func newPaymentFixture() (*mockPaymentStore, *mockMilestoneRepo, *mockProjectRepo, *mockGateway, *PaymentService) {
	payments := new(mockPaymentStore)
	milestones := new(mockMilestoneRepo)
	projects := new(mockProjectRepo)
	gw := new(mockGateway)
	svc := NewPaymentService(payments, milestones, projects, gw)
	return payments, milestones, projects, gw, svc
}

func TestPaymentService_Fund_RequiresIdempotencyKey(t *testing.T) {
	_, _, _, _, svc := newPaymentFixture()

	_, err := svc.Fund(context.Background(), uuid.New(), uuid.New(), models.PaymentMethodCard, "")
	assert.Error(t, err)
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeValidation, code)
}

func TestPaymentService_Fund_UnknownMethod(t *testing.T) {
	_, _, _, _, svc := newPaymentFixture()

	_, err := svc.Fund(context.Background(), uuid.New(), uuid.New(), "crypto", "key-1")
	assert.Error(t, err)
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeValidation, code)
}

func TestPaymentService_Fund_Success(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusPending}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)
	payments.On("GetByMilestoneID", ctx, m.ID).Return(nil, apperror.ErrPaymentNotFound)
	payments.On("GetOperation", ctx, "key-1").Return(nil, sql.ErrNoRows)
	payments.On("BeginOperation", ctx, mock.MatchedBy(func(op *models.PaymentOperation) bool {
		return op.IdempotencyKey == "key-1" && op.Kind == models.OperationEscrow && op.Amount == 1000
	})).Return(nil)
	gw.On("Escrow", ctx, 1000.0, "USD", "key-1").Return("esc_42", nil)
	payments.On("Create", ctx, mock.MatchedBy(func(p *models.Payment) bool {
		return p.MilestoneID == m.ID && p.Status == models.PaymentStatusEscrowed && p.EscrowRef == "esc_42"
	})).Return(nil)
	payments.On("CompleteOperation", ctx, "key-1", mock.AnythingOfType("*string"), (*string)(nil)).Return(nil)

	p, err := svc.Fund(ctx, m.ID, clientID, models.PaymentMethodCard, "key-1")
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusEscrowed, p.Status)
	assert.Equal(t, "esc_42", p.EscrowRef)
	payments.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestPaymentService_Fund_NotClient(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	project := testProject(uuid.New(), uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusPending}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)

	_, err := svc.Fund(ctx, m.ID, project.FreelancerID, models.PaymentMethodCard, "key-1")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	gw.AssertNotCalled(t, "Escrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "BeginOperation", mock.Anything, mock.Anything)
}

func TestPaymentService_Fund_AlreadyFunded(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusPending}
	existing := &models.Payment{ID: uuid.New(), MilestoneID: m.ID, Status: models.PaymentStatusEscrowed}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)
	payments.On("GetByMilestoneID", ctx, m.ID).Return(existing, nil)

	_, err := svc.Fund(ctx, m.ID, clientID, models.PaymentMethodCard, "key-1")
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeConflict, code)
	gw.AssertNotCalled(t, "Escrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Fund_ReplayCompletedOperation(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusPending}
	op := &models.PaymentOperation{IdempotencyKey: "key-1", Kind: models.OperationEscrow, Status: models.OperationStatusCompleted}
	existing := &models.Payment{ID: op.PaymentID, MilestoneID: m.ID, Status: models.PaymentStatusEscrowed, EscrowRef: "esc_42"}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)
	// Первый вызов: платежа ещё нет; второй — возврат по завершённой операции.
	payments.On("GetByMilestoneID", ctx, m.ID).Return(nil, apperror.ErrPaymentNotFound).Once()
	payments.On("GetOperation", ctx, "key-1").Return(op, nil)
	payments.On("GetByMilestoneID", ctx, m.ID).Return(existing, nil).Once()

	p, err := svc.Fund(ctx, m.ID, clientID, models.PaymentMethodCard, "key-1")
	assert.NoError(t, err)
	assert.Equal(t, "esc_42", p.EscrowRef)
	gw.AssertNotCalled(t, "Escrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "BeginOperation", mock.Anything, mock.Anything)
}

func TestPaymentService_Fund_GatewayFailure(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusPending}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)
	payments.On("GetByMilestoneID", ctx, m.ID).Return(nil, apperror.ErrPaymentNotFound)
	payments.On("GetOperation", ctx, "key-1").Return(nil, sql.ErrNoRows)
	payments.On("BeginOperation", ctx, mock.Anything).Return(nil)
	gw.On("Escrow", ctx, 1000.0, "USD", "key-1").Return("", errors.New("processor unavailable"))
	payments.On("FailOperation", ctx, "key-1").Return(nil)

	_, err := svc.Fund(ctx, m.ID, clientID, models.PaymentMethodCard, "key-1")
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeGateway, code)
	payments.AssertCalled(t, "FailOperation", ctx, "key-1")
	payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPaymentService_Pay_NotApproved(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Status: models.MilestoneStatusSubmitted}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)

	_, err := svc.Pay(ctx, m.ID, clientID, "key-2")
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeConflict, code)
	gw.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "FinalizeRelease", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Pay_Success(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusApproved}
	payment := &models.Payment{ID: uuid.New(), ProjectID: project.ID, MilestoneID: m.ID, Amount: 1000, Status: models.PaymentStatusEscrowed, EscrowRef: "esc_42"}
	txID := "tx_7"
	released := &models.Payment{ID: payment.ID, ProjectID: project.ID, MilestoneID: m.ID, Amount: 1000, Status: models.PaymentStatusReleased, ReleaseTxID: &txID}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)
	payments.On("GetByMilestoneID", ctx, m.ID).Return(payment, nil)
	payments.On("GetOperation", ctx, "key-2").Return(nil, sql.ErrNoRows)
	payments.On("BeginOperation", ctx, mock.MatchedBy(func(op *models.PaymentOperation) bool {
		return op.Kind == models.OperationRelease && op.PaymentID == payment.ID
	})).Return(nil)
	gw.On("Release", ctx, "esc_42", 1000.0, "key-2").Return("tx_7", nil)
	payments.On("CompleteOperation", ctx, "key-2", mock.AnythingOfType("*string"), (*string)(nil)).Return(nil)
	payments.On("FinalizeRelease", ctx, payment.ID, "tx_7").Return(released, nil)

	p, err := svc.Pay(ctx, m.ID, clientID, "key-2")
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, p.Status)
	payments.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestPaymentService_Pay_ProjectDisputedRejected(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	// Спор по проекту в целом: сам этап принят и не заморожен по статусу,
	// но резерв должен остаться нетронутым до решения арбитра.
	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	project.Status = models.ProjectStatusDisputed
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusApproved}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)

	_, err := svc.Pay(ctx, m.ID, clientID, "key-2")
	assert.Error(t, err)
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeFrozen, code)
	gw.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "BeginOperation", mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "FinalizeRelease", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Fund_ProjectDisputedRejected(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	project.Status = models.ProjectStatusDisputed
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusPending}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)

	_, err := svc.Fund(ctx, m.ID, clientID, models.PaymentMethodCard, "key-1")
	assert.Error(t, err)
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeFrozen, code)
	gw.AssertNotCalled(t, "Escrow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPaymentService_Pay_GatewayFailureKeepsMilestoneApproved(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusApproved}
	payment := &models.Payment{ID: uuid.New(), ProjectID: project.ID, MilestoneID: m.ID, Amount: 1000, Status: models.PaymentStatusEscrowed, EscrowRef: "esc_42"}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)
	payments.On("GetByMilestoneID", ctx, m.ID).Return(payment, nil)
	payments.On("GetOperation", ctx, "key-2").Return(nil, sql.ErrNoRows)
	payments.On("BeginOperation", ctx, mock.Anything).Return(nil)
	gw.On("Release", ctx, "esc_42", 1000.0, "key-2").Return("", errors.New("timeout"))
	payments.On("FailOperation", ctx, "key-2").Return(nil)

	_, err := svc.Pay(ctx, m.ID, clientID, "key-2")
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeGateway, code)
	payments.AssertCalled(t, "FailOperation", ctx, "key-2")
	payments.AssertNotCalled(t, "FinalizeRelease", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Pay_ReplayCompletedFinalizes(t *testing.T) {
	payments, milestones, projects, gw, svc := newPaymentFixture()
	ctx := context.Background()

	clientID := uuid.New()
	project := testProject(clientID, uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID, Amount: 1000, Status: models.MilestoneStatusApproved}
	payment := &models.Payment{ID: uuid.New(), ProjectID: project.ID, MilestoneID: m.ID, Amount: 1000, Status: models.PaymentStatusEscrowed, EscrowRef: "esc_42"}
	txID := "tx_7"
	op := &models.PaymentOperation{IdempotencyKey: "key-2", PaymentID: payment.ID, Kind: models.OperationRelease, Status: models.OperationStatusCompleted, TxID: &txID}
	released := &models.Payment{ID: payment.ID, Status: models.PaymentStatusReleased, ReleaseTxID: &txID}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)
	payments.On("GetByMilestoneID", ctx, m.ID).Return(payment, nil)
	payments.On("GetOperation", ctx, "key-2").Return(op, nil)
	payments.On("FinalizeRelease", ctx, payment.ID, "tx_7").Return(released, nil)

	p, err := svc.Pay(ctx, m.ID, clientID, "key-2")
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, p.Status)
	gw.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "BeginOperation", mock.Anything, mock.Anything)
}

func TestPaymentService_ListByProject_StrangerForbidden(t *testing.T) {
	payments, _, projects, _, svc := newPaymentFixture()
	ctx := context.Background()

	project := testProject(uuid.New(), uuid.New())
	projects.On("GetByID", ctx, project.ID).Return(project, nil)

	_, err := svc.ListByProject(ctx, project.ID, uuid.New(), models.RoleClient)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	payments.AssertNotCalled(t, "ListByProject", mock.Anything, mock.Anything)
}
