package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devlinkhq/marketplace-backend/internal/http/handlers/common"
	"github.com/devlinkhq/marketplace-backend/internal/service"
)

type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Me GET /account
func (h *AccountHandler) Me(c *gin.Context) {
	actor, err := common.CurrentIdentity(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	user, err := h.accounts.Me(c.Request.Context(), actor)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// ConnectPayoutAccount POST /account/payout-account
func (h *AccountHandler) ConnectPayoutAccount(c *gin.Context) {
	actor, err := common.CurrentIdentity(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		AccountID string `json:"account_id" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.accounts.ConnectPayoutAccount(c.Request.Context(), actor, req.AccountID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// SetBillingProfile POST /account/billing-profile
func (h *AccountHandler) SetBillingProfile(c *gin.Context) {
	actor, err := common.CurrentIdentity(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		CustomerID      string `json:"customer_id" binding:"required"`
		PaymentMethodID string `json:"payment_method_id" binding:"required"`
	}
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	user, err := h.accounts.SetBillingProfile(c.Request.Context(), actor, req.CustomerID, req.PaymentMethodID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, user)
}
