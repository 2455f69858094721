package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type mockMilestoneRepo struct {
	mock.Mock
}

func (m *mockMilestoneRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneRepo) Start(ctx context.Context, milestoneID, freelancerID uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, milestoneID, freelancerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneRepo) Submit(ctx context.Context, milestoneID, freelancerID uuid.UUID, note string, attachmentID *uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, milestoneID, freelancerID, note, attachmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneRepo) ApproveSubmission(ctx context.Context, milestoneID, clientID uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, milestoneID, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneRepo) RequestChanges(ctx context.Context, milestoneID, clientID uuid.UUID, reason string) (*models.Milestone, error) {
	args := m.Called(ctx, milestoneID, clientID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockMilestoneRepo) History(ctx context.Context, milestoneID uuid.UUID) ([]models.MilestoneSubmission, error) {
	args := m.Called(ctx, milestoneID)
	return args.Get(0).([]models.MilestoneSubmission), args.Error(1)
}

func TestMilestoneService_Submit_RequiresContent(t *testing.T) {
	milestones := new(mockMilestoneRepo)
	projects := new(mockProjectRepo)
	svc := NewMilestoneService(milestones, projects)
	ctx := context.Background()

	_, err := svc.Submit(ctx, uuid.New(), uuid.New(), "", nil)
	assert.Error(t, err)
	code, ok := apperror.CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, apperror.ErrCodeValidation, code)
	milestones.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_Submit_NoteOnly(t *testing.T) {
	milestones := new(mockMilestoneRepo)
	projects := new(mockProjectRepo)
	svc := NewMilestoneService(milestones, projects)
	ctx := context.Background()

	milestoneID, freelancerID := uuid.New(), uuid.New()
	expected := &models.Milestone{ID: milestoneID, Status: models.MilestoneStatusSubmitted}
	milestones.On("Submit", ctx, milestoneID, freelancerID, "готово, ссылка в комментарии", (*uuid.UUID)(nil)).Return(expected, nil)

	m, err := svc.Submit(ctx, milestoneID, freelancerID, "готово, ссылка в комментарии", nil)
	assert.NoError(t, err)
	assert.Equal(t, models.MilestoneStatusSubmitted, m.Status)
	milestones.AssertExpectations(t)
}

func TestMilestoneService_RequestChanges_EmptyReason(t *testing.T) {
	milestones := new(mockMilestoneRepo)
	projects := new(mockProjectRepo)
	svc := NewMilestoneService(milestones, projects)
	ctx := context.Background()

	_, err := svc.RequestChanges(ctx, uuid.New(), uuid.New(), "  ")
	assert.Error(t, err)
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeValidation, code)
	milestones.AssertNotCalled(t, "RequestChanges", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_RequestChanges_Success(t *testing.T) {
	milestones := new(mockMilestoneRepo)
	projects := new(mockProjectRepo)
	svc := NewMilestoneService(milestones, projects)
	ctx := context.Background()

	milestoneID, clientID := uuid.New(), uuid.New()
	expected := &models.Milestone{ID: milestoneID, Status: models.MilestoneStatusInProgress, Revision: 2}
	milestones.On("RequestChanges", ctx, milestoneID, clientID, "не хватает мобильной версии").Return(expected, nil)

	m, err := svc.RequestChanges(ctx, milestoneID, clientID, "не хватает мобильной версии")
	assert.NoError(t, err)
	assert.Equal(t, 2, m.Revision)
	assert.Equal(t, models.MilestoneStatusInProgress, m.Status)
}

func TestMilestoneService_Get_StrangerForbidden(t *testing.T) {
	milestones := new(mockMilestoneRepo)
	projects := new(mockProjectRepo)
	svc := NewMilestoneService(milestones, projects)
	ctx := context.Background()

	project := testProject(uuid.New(), uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)

	_, err := svc.Get(ctx, m.ID, uuid.New(), models.RoleClient)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestMilestoneService_History_ArbiterAllowed(t *testing.T) {
	milestones := new(mockMilestoneRepo)
	projects := new(mockProjectRepo)
	svc := NewMilestoneService(milestones, projects)
	ctx := context.Background()

	project := testProject(uuid.New(), uuid.New())
	m := &models.Milestone{ID: uuid.New(), ProjectID: project.ID}

	milestones.On("GetByID", ctx, m.ID).Return(m, nil)
	projects.On("GetByID", ctx, project.ID).Return(project, nil)
	milestones.On("History", ctx, m.ID).Return([]models.MilestoneSubmission{{Revision: 1}}, nil)

	history, err := svc.History(ctx, m.ID, uuid.New(), models.RoleArbiter)
	assert.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMilestoneService_Start_RepoErrorPassesThrough(t *testing.T) {
	milestones := new(mockMilestoneRepo)
	projects := new(mockProjectRepo)
	svc := NewMilestoneService(milestones, projects)
	ctx := context.Background()

	milestoneID, freelancerID := uuid.New(), uuid.New()
	orderingErr := apperror.New(apperror.ErrCodeOrdering, "предыдущий этап ещё не принят")
	milestones.On("Start", ctx, milestoneID, freelancerID).Return(nil, orderingErr)

	_, err := svc.Start(ctx, milestoneID, freelancerID)
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeOrdering, code)
}
