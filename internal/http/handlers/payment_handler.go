package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// PaymentHandler обслуживает денежные операции по этапам. Ключ
// идемпотентности передаётся заголовком Idempotency-Key и прокидывается
// до платёжного шлюза без изменений.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(s *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: s}
}

// Fund POST /milestones/:id/fund
func (h *PaymentHandler) Fund(c *gin.Context) {
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

	var req dto.FundMilestoneRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.payments.Fund(c.Request.Context(), milestoneID, userID, req.Method, c.GetHeader("Idempotency-Key"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// Pay POST /milestones/:id/pay
func (h *PaymentHandler) Pay(c *gin.Context) {
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

	payment, err := h.payments.Pay(c.Request.Context(), milestoneID, userID, c.GetHeader("Idempotency-Key"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// ListByProject GET /projects/:id/payments
func (h *PaymentHandler) ListByProject(c *gin.Context) {
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

	payments, err := h.payments.ListByProject(c.Request.Context(), projectID, userID, role)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}
