// Package api provides the HTTP and websocket handlers of roomgate.
//
// Error Handling:
// Handlers report failures through an ErrorResponder so that every error
// body has the shape {"error": "<code>"} and details stay in the server log.
//
// Usage:
//
//	h.errors.Respond(c, err)
//
// Avoid direct c.JSON calls with error payloads - use ErrorResponder instead.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSONResponse writes data with status 200.
func JSONResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}
