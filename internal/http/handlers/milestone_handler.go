package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// MilestoneHandler обслуживает план этапов проекта: согласование набора,
// утверждение обеими сторонами и жизненный цикл каждого этапа.
type MilestoneHandler struct {
	negotiation *service.NegotiationService
	milestones  *service.MilestoneService
}

func NewMilestoneHandler(negotiation *service.NegotiationService, milestones *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{negotiation: negotiation, milestones: milestones}
}

// ListLedger GET /projects/:id/milestones
func (h *MilestoneHandler) ListLedger(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	projectID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор проекта")
		return
	}

	milestones, err := h.negotiation.ListMilestones(c.Request.Context(), projectID, userID, role)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

// ReplaceLedger PUT /projects/:id/milestones
func (h *MilestoneHandler) ReplaceLedger(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	projectID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор проекта")
		return
	}

	var req dto.ReplaceMilestonesRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	drafts := make([]models.MilestoneDraft, 0, len(req.Milestones))
	for _, d := range req.Milestones {
		drafts = append(drafts, models.MilestoneDraft{
			Title:       d.Title,
			Description: d.Description,
			Amount:      d.Amount,
			DueDate:     d.DueDate,
		})
	}

	milestones, err := h.negotiation.ProposeEdit(c.Request.Context(), projectID, userID, drafts)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

// ApprovePlan POST /projects/:id/milestones/approve
func (h *MilestoneHandler) ApprovePlan(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	projectID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор проекта")
		return
	}

	state, err := h.negotiation.Approve(c.Request.Context(), projectID, userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// ApprovalState GET /projects/:id/approval
func (h *MilestoneHandler) ApprovalState(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	projectID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор проекта")
		return
	}

	state, err := h.negotiation.State(c.Request.Context(), projectID, userID, role)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// Get GET /milestones/:id
func (h *MilestoneHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор этапа")
		return
	}

	m, err := h.milestones.Get(c.Request.Context(), milestoneID, userID, role)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Start POST /milestones/:id/start
func (h *MilestoneHandler) Start(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор этапа")
		return
	}

	m, err := h.milestones.Start(c.Request.Context(), milestoneID, userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Submit POST /milestones/:id/submit
func (h *MilestoneHandler) Submit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор этапа")
		return
	}

	var req dto.SubmitMilestoneRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	m, err := h.milestones.Submit(c.Request.Context(), milestoneID, userID, req.Note, req.AttachmentID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Approve POST /milestones/:id/approve
func (h *MilestoneHandler) Approve(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор этапа")
		return
	}

	m, err := h.milestones.Approve(c.Request.Context(), milestoneID, userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// RequestChanges POST /milestones/:id/request-changes
func (h *MilestoneHandler) RequestChanges(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор этапа")
		return
	}

	var req dto.RequestChangesRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	m, err := h.milestones.RequestChanges(c.Request.Context(), milestoneID, userID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// History GET /milestones/:id/history
func (h *MilestoneHandler) History(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, _ := common.CurrentUserRole(c)

	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор этапа")
		return
	}

	history, err := h.milestones.History(c.Request.Context(), milestoneID, userID, role)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": history})
}
