package middleware

import (
	"github.com/gin-gonic/gin"
)

// abortWithCode writes the public {"error": code} body and stops the chain.
func abortWithCode(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}
