package repository

import (
	"github.com/ericfisherdev/roomgate/internal/domain"
)

// IsNotFound checks if an error represents a "not found" condition.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return domain.TypeOf(err) == domain.NotFoundError
}
