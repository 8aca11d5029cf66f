package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devlinkhq/marketplace-backend/internal/http/handlers/common"
	"github.com/devlinkhq/marketplace-backend/internal/service"
)

type MilestoneHandler struct {
	milestones *service.MilestoneService
}

func NewMilestoneHandler(milestones *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones}
}

// Start POST /milestones/:id/start
func (h *MilestoneHandler) Start(c *gin.Context) {
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

	if err := h.milestones.Start(c.Request.Context(), actor, milestoneID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "in_progress"})
}

// Ready POST /milestones/:id/ready
func (h *MilestoneHandler) Ready(c *gin.Context) {
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

	if err := h.milestones.MarkReadyForReview(c.Request.Context(), actor, milestoneID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready_for_review"})
}

// Approve POST /milestones/:id/approve
func (h *MilestoneHandler) Approve(c *gin.Context) {
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

	tx, err := h.milestones.Approve(c.Request.Context(), actor, milestoneID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// Dispute POST /milestones/:id/dispute
func (h *MilestoneHandler) Dispute(c *gin.Context) {
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

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.milestones.DisputeMilestone(c.Request.Context(), actor, milestoneID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dispute)
}
