package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/roomgate/internal/api/middleware"
	"github.com/ericfisherdev/roomgate/internal/repository"
	"github.com/ericfisherdev/roomgate/internal/services"
)

// AuthHandler handles the OAuth login flow and profile lookups.
type AuthHandler struct {
	oauth      services.OAuthService
	identities repository.IdentityRepository
	errors     *ErrorResponder
	logger     *slog.Logger
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(
	oauth services.OAuthService,
	identities repository.IdentityRepository,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		oauth:      oauth,
		identities: identities,
		errors:     NewErrorResponder(logger),
		logger:     logger,
	}
}

// RegisterRoutes registers authentication routes with the router.
// Login and callback share the limiter so state minting is throttled per client.
func (h *AuthHandler) RegisterRoutes(
	router gin.IRouter,
	authMiddleware *middleware.AuthMiddleware,
	limiter gin.HandlerFunc,
) {
	auth := router.Group("/auth")
	if limiter != nil {
		auth.Use(limiter)
	}
	{
		auth.GET("/:provider/login", h.Login)
		auth.GET("/:provider/callback", h.Callback)
	}

	router.GET("/me", authMiddleware.RequireAuth(), h.Me)
}

// Login redirects the browser to the provider with a fresh state token.
func (h *AuthHandler) Login(c *gin.Context) {
	redirect, err := h.oauth.BeginLogin(c.Request.Context(), c.Param("provider"))
	if err != nil {
		h.errors.Respond(c, err)
		return
	}

	c.Redirect(http.StatusFound, redirect.URL)
}

// Callback completes the login and returns {"jwt": ..., "user": ...}.
func (h *AuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")

	if reason := c.Query("error"); reason != "" {
		h.logger.Info("Provider returned an error to the callback",
			"request_id", middleware.GetRequestID(c),
			"provider", provider,
			"reason", reason,
		)
	}

	result, err := h.oauth.CompleteLogin(c.Request.Context(), provider, c.Query("code"), c.Query("state"))
	if err != nil {
		h.errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Me returns the stored profile of the caller, or {"user": null} when none is cached.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetClaimsFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": PublicUnauthorized})
		return
	}

	profile, err := h.identities.GetByID(c.Request.Context(), claims.Subject)
	switch {
	case repository.IsNotFound(err):
		c.JSON(http.StatusOK, gin.H{"user": nil})
	case err != nil:
		h.errors.Respond(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"user": profile})
	}
}
