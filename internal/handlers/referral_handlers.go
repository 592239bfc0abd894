package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/refgraph/refgraph-api/internal/logger"
)

// ReferralHandler handles referral capture and referral-derived reads
type ReferralHandler struct {
	common *CommonServices
}

// NewReferralHandler creates a new ReferralHandler instance
func NewReferralHandler(common *CommonServices) *ReferralHandler {
	return &ReferralHandler{common: common}
}

// Capture stores the referrer address from a referral link and redirects the
// visitor to the application root. The address is not validated here; a
// malformed referrer surfaces later, when the activation call rejects it.
// Repeated visits overwrite the slot (last write wins).
func (h *ReferralHandler) Capture(c *gin.Context) {
	referrer := c.Param("address")
	if err := h.common.referrals.Put(c.Request.Context(), referrer); err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to store referral", err)
		return
	}
	logger.Info("Referral captured", zap.String("referrer", referrer))
	c.Redirect(http.StatusFound, "/")
}

// ReferralLink returns the shareable referral URL for the connected account
func (h *ReferralHandler) ReferralLink(c *gin.Context) {
	sess, ok := h.common.sessions.Current()
	if !ok {
		sendError(c, http.StatusConflict, "No wallet session", nil)
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{
		"referral_link": h.common.cfg.ReferralLink(sess.Account.Hex()),
	})
}

// ListReferrals returns the connected account's downstream referrals
func (h *ReferralHandler) ListReferrals(c *gin.Context) {
	sess, ok := h.common.sessions.Current()
	if !ok {
		sendSuccess(c, http.StatusOK, gin.H{"object": "list", "data": []string{}})
		return
	}
	referrals := h.common.snapshots.Referrals(c.Request.Context(), sess.Contract, sess.Account)
	sendSuccess(c, http.StatusOK, gin.H{"object": "list", "data": referrals})
}

// GetEarnings returns the connected account's earnings in the native
// currency's decimal form
func (h *ReferralHandler) GetEarnings(c *gin.Context) {
	currency := h.common.cfg.NativeCurrency()
	sess, ok := h.common.sessions.Current()
	if !ok {
		sendSuccess(c, http.StatusOK, gin.H{"earnings": "0", "symbol": currency.Symbol})
		return
	}
	earnings := h.common.snapshots.Earnings(c.Request.Context(), sess.Contract, sess.Account)
	sendSuccess(c, http.StatusOK, gin.H{"earnings": earnings, "symbol": currency.Symbol})
}
