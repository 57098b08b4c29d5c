package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
	"go.uber.org/zap"
)

const identityKey = "identity"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *zap.Logger
	retryAfter  time.Duration
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *zap.Logger, retryAfter time.Duration) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
		retryAfter:  retryAfter,
	}
}

type challengeRequest struct {
	ClaimedAddress string `json:"claimed_address" binding:"required"`
	Domain         string `json:"domain" binding:"required"`
	ChainID        int64  `json:"chain_id" binding:"required"`
}

type challengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Message     string    `json:"message"`
	Nonce       string    `json:"nonce"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Signature   string `json:"signature" binding:"required"`
}

type refreshRequest struct {
	RefreshAssertion string `json:"refresh_assertion" binding:"required"`
}

type revokeRequest struct {
	TargetAssertion string `json:"target_assertion" binding:"required"`
	Scope           string `json:"scope" binding:"required,oneof=this-session all-sessions"`
}

type pairResponse struct {
	AccessAssertion  string `json:"access_assertion"`
	RefreshAssertion string `json:"refresh_assertion"`
	TokenType        string `json:"token_type"`
	AccessExpiresIn  int64  `json:"access_expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

func newPairResponse(pair *core.TokenPair) pairResponse {
	return pairResponse{
		AccessAssertion:  pair.AccessToken,
		RefreshAssertion: pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresIn:  int64(pair.AccessExpiresAt.Sub(pair.IssuedAt).Seconds()),
		RefreshExpiresIn: int64(pair.RefreshExpiresAt.Sub(pair.IssuedAt).Seconds()),
	}
}

// Challenge handles the challenge request
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, core.ErrInvalidRequest)
		return
	}

	challenge, message, err := h.authService.IssueChallenge(c.Request.Context(), service.ChallengeRequest{
		Address:  req.ClaimedAddress,
		Domain:   req.Domain,
		ChainID:  req.ChainID,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, challengeResponse{
		ChallengeID: challenge.ID,
		Message:     message,
		Nonce:       challenge.Nonce,
		IssuedAt:    challenge.IssuedAt,
		ExpiresAt:   challenge.ExpiresAt,
	})
}

// Verify handles the signed challenge and opens a session
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, core.ErrInvalidRequest)
		return
	}

	pair, err := h.authService.Login(c.Request.Context(), req.ChallengeID, req.Signature, c.ClientIP())
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPairResponse(pair))
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, core.ErrInvalidRequest)
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshAssertion)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newPairResponse(pair))
}

// Revoke handles session logout
func (h *AuthHandlers) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, core.ErrInvalidRequest)
		return
	}

	err := h.authService.RevokeAssertion(c.Request.Context(), req.TargetAssertion, service.Scope(req.Scope), core.ReasonUserLogout)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	identity := identityFrom(c)

	c.JSON(http.StatusOK, gin.H{
		"address":    identity.Address,
		"family_id":  identity.FamilyID,
		"expires_at": identity.ExpiresAt,
	})
}

// Authorize answers forward-auth subrequests of a reverse proxy. The verified
// address is handed upstream in a header.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	identity := identityFrom(c)

	c.Header("X-Wallet-Address", identity.Address)
	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    identity.Address,
	})
}

func identityFrom(c *gin.Context) *core.Identity {
	return c.MustGet(identityKey).(*core.Identity)
}
