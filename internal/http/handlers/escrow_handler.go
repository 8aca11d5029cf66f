package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devlinkhq/marketplace-backend/internal/http/handlers/common"
	"github.com/devlinkhq/marketplace-backend/internal/service"
)

type EscrowHandler struct {
	escrow *service.EscrowService
}

func NewEscrowHandler(escrow *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

// Fund POST /milestones/:id/escrow
func (h *EscrowHandler) Fund(c *gin.Context) {
	actor, err := common.CurrentIdentity(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.escrow.CreateEscrowHold(c.Request.Context(), actor, milestoneID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// Release POST /milestones/:id/escrow/release
//
// Retry entry point for a payout that did not complete after approval.
func (h *EscrowHandler) Release(c *gin.Context) {
	actor, err := common.CurrentIdentity(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.escrow.ReleaseByMilestone(c.Request.Context(), actor, milestoneID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// Get GET /milestones/:id/escrow
func (h *EscrowHandler) Get(c *gin.Context) {
	actor, err := common.CurrentIdentity(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	milestoneID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	tx, err := h.escrow.GetMilestoneEscrow(c.Request.Context(), actor, milestoneID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// ListTransactions GET /transactions
func (h *EscrowHandler) ListTransactions(c *gin.Context) {
	actor, err := common.CurrentIdentity(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	limit, offset := common.GetPagination(c)

	txs, err := h.escrow.ListOwn(c.Request.Context(), actor, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
