package llm

import (
	"github.com/raphaelgruber/tunechat/internal/models"
)

// wrapError turns a provider error into a *models.ServiceError.
// Existing service errors pass through unchanged.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := models.AsServiceError(err); ok {
		return err
	}
	return &models.ServiceError{Op: op, Err: err}
}

// isFatalAPIError reports whether err is an account-level failure that a
// re-run will not fix.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	if svcErr, ok := models.AsServiceError(err); ok {
		return svcErr.Fatal()
	}
	return models.IsFatalMessage(err.Error())
}
