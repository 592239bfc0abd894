package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refgraph/refgraph-api/internal/services"
)

// SessionHandler handles wallet-session operations
type SessionHandler struct {
	common *CommonServices
}

// NewSessionHandler creates a new SessionHandler instance
func NewSessionHandler(common *CommonServices) *SessionHandler {
	return &SessionHandler{common: common}
}

// SessionResponse represents the current wallet session and, when connected,
// the account's on-chain snapshot.
type SessionResponse struct {
	Connected   bool     `json:"connected"`
	Account     string   `json:"account,omitempty"`
	ChainID     uint64   `json:"chain_id,omitempty"`
	IsActive    bool     `json:"is_active"`
	Earnings    string   `json:"earnings,omitempty"`
	Referrals   []string `json:"referrals,omitempty"`
	ExplorerURL string   `json:"explorer_url,omitempty"`
}

// ActivateRequest represents the request body for account activation
type ActivateRequest struct {
	Referrer string `json:"referrer,omitempty"`
}

// GetSession returns the current session with its account snapshot
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.common.sessions.Current()
	if !ok {
		sendSuccess(c, http.StatusOK, SessionResponse{Connected: false})
		return
	}
	snap := h.common.snapshots.Read(c.Request.Context(), sess.Contract, sess.Account)
	sendSuccess(c, http.StatusOK, h.sessionResponse(sess, snap))
}

// Connect requests wallet account access and binds a session
func (h *SessionHandler) Connect(c *gin.Context) {
	sess, err := h.common.sessions.Connect(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProviderUnavailable):
			sendError(c, http.StatusServiceUnavailable, "Wallet provider unavailable", err)
		case errors.Is(err, services.ErrConnectionRejected):
			sendError(c, http.StatusBadGateway, "Wallet connection rejected", err)
		default:
			sendError(c, http.StatusInternalServerError, "Failed to connect wallet", err)
		}
		return
	}
	snap := h.common.snapshots.Read(c.Request.Context(), sess.Contract, sess.Account)
	sendSuccess(c, http.StatusOK, h.sessionResponse(sess, snap))
}

// Disconnect clears the session unconditionally
func (h *SessionHandler) Disconnect(c *gin.Context) {
	h.common.sessions.Disconnect(c.Request.Context())
	sendSuccessMessage(c, http.StatusOK, "Wallet disconnected")
}

// Activate submits the one-time activation transaction
func (h *SessionHandler) Activate(c *gin.Context) {
	var req ActivateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			sendError(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	result, err := h.common.activations.Activate(c.Request.Context(), req.Referrer)
	if err != nil {
		sendError(c, http.StatusBadGateway, "Failed to activate account", err)
		return
	}
	if result == nil {
		sendSuccessMessage(c, http.StatusOK, "No wallet session, nothing to activate")
		return
	}

	sendSuccess(c, http.StatusOK, gin.H{
		"tx_hash":      result.TxHash,
		"referrer":     result.Referrer,
		"snapshot":     result.Snapshot,
		"explorer_url": h.common.cfg.ExplorerTxURL(result.TxHash),
	})
}

func (h *SessionHandler) sessionResponse(sess services.Session, snap services.AccountSnapshot) SessionResponse {
	return SessionResponse{
		Connected:   true,
		Account:     sess.Account.Hex(),
		ChainID:     sess.ChainID.Uint64(),
		IsActive:    sess.IsActive,
		Earnings:    snap.Earnings,
		Referrals:   snap.Referrals,
		ExplorerURL: h.common.cfg.ExplorerAddressURL(sess.Account.Hex()),
	}
}
