package metrics

import (
	"errors"
	"strings"
	"time"
)

// RecordDBOperation records database operation metrics consistently
// repo: repository name (e.g., "user", "access_token", "refresh_token")
// operation: operation name (e.g., "create", "get", "redeem", "delete_expired")
// duration: time taken for the operation
// rowsAffected: number of rows affected/returned (-1 if not applicable)
// err: error from the operation (nil if successful)
func RecordDBOperation(repo, operation string, duration time.Duration, rowsAffected int64, err error) {
	ms := float64(duration.Milliseconds())
	DBDuration.WithLabelValues(repo, operation).Observe(ms)

	if rowsAffected >= 0 {
		DBRowsAffected.WithLabelValues(repo, operation).Observe(float64(rowsAffected))
	}

	status := "success"
	if err != nil {
		status = "error"
		DBErrors.WithLabelValues(repo, operation, classifyDBError(err)).Inc()
	}
	DBOperations.WithLabelValues(repo, operation, status).Inc()
}

// RecordAuthOperation records the outcome of an authentication provider call.
// kinds maps sentinel errors to the status label; unmatched errors are "error".
func RecordAuthOperation(method string, duration time.Duration, err error, kinds map[error]string) {
	AuthDuration.WithLabelValues(method).Observe(float64(duration.Milliseconds()))

	status := "success"
	if err != nil {
		status = "error"
		for target, kind := range kinds {
			if errors.Is(err, target) {
				status = kind
				break
			}
		}
	}
	AuthOperations.WithLabelValues(method, status).Inc()
}

// classifyDBError categorizes database errors for metrics
func classifyDBError(err error) string {
	if err == nil {
		return "none"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique constraint"):
		return "duplicate"
	case strings.Contains(errStr, "not found") || strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "locked") || strings.Contains(errStr, "busy"):
		return "locked"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "connect"):
		return "connection"
	case strings.Contains(errStr, "foreign key"):
		return "foreign_key"
	case strings.Contains(errStr, "constraint"):
		return "constraint"
	default:
		return "other"
	}
}
