package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	// Pipeline stage failures
	ErrFetch           = errors.New("source image fetch failed")         // Network error or non-200 status
	ErrImageProcessing = errors.New("image processing failed")           // Corrupt/unreadable source, retrying will not help
	ErrOptimization    = errors.New("tile optimization failed")          // External recompression exited non-zero (transient)
	ErrUpload          = errors.New("tile upload failed")                // Object store transport or auth failure (transient)
	ErrPersistence     = errors.New("map record update failed")          // Must never be silently dropped
	ErrMapGone         = errors.New("map record no longer exists")       // Owning map deleted mid-flight, treated as no-op

	// HTTP transport (fetcher retry policy)
	ErrRetryFailed     = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError = errors.New("client HTTP error (4xx)")          // Wraps original error/status
	ErrServerHTTPError = errors.New("server HTTP error (5xx)")          // Wraps original error/status
	ErrOtherHTTPError  = errors.New("other HTTP error (non-2xx)")       // Wraps original error/status
	ErrRequestCreation = errors.New("failed to create HTTP request")

	// Infrastructure
	ErrFilesystem       = errors.New("filesystem error")   // Wraps os errors
	ErrDatabase         = errors.New("queue state error")  // Wraps badger errors
	ErrNotFound         = errors.New("record not found")   // Row missing in the relational store
	ErrConfigValidation = errors.New("configuration validation error")
)

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	// Check against sentinel errors first
	switch {
	case errors.Is(err, ErrFetch):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "FetchError_HTTP404"
		}
		if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded") {
			return "FetchError_Timeout"
		}
		return "FetchError"
	case errors.Is(err, ErrImageProcessing):
		return "ImageProcessingError"
	case errors.Is(err, ErrOptimization):
		return "OptimizationError"
	case errors.Is(err, ErrUpload):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 401 ") || strings.Contains(errMsg, " 403 ") {
			return "UploadError_Auth"
		}
		return "UploadError"
	case errors.Is(err, ErrPersistence):
		return "PersistenceError"
	case errors.Is(err, ErrMapGone):
		return "MapGone"
	case errors.Is(err, ErrRetryFailed):
		underlying := errors.Unwrap(err)
		if underlying != nil {
			if errors.Is(underlying, ErrServerHTTPError) {
				return "RetryFailed_HTTPServer"
			}
			if errors.Is(underlying, ErrClientHTTPError) {
				return "RetryFailed_HTTPClient"
			}
			errMsg := underlying.Error()
			if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded") {
				return "RetryFailed_NetworkTimeout"
			}
			if strings.Contains(errMsg, "connection refused") {
				return "RetryFailed_ConnectionRefused"
			}
			if strings.Contains(errMsg, "no such host") {
				return "RetryFailed_DNSLookup"
			}
			var netErr net.Error
			if errors.As(underlying, &netErr) && netErr.Timeout() {
				return "RetryFailed_NetworkTimeout"
			}
			return "RetryFailed_NetworkOther"
		}
		return "RetryFailed_Unknown"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 401 ") {
			return "HTTP_401"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "QueueState_Other"
	case errors.Is(err, ErrNotFound):
		return "Database_NotFound"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}

	return "Unknown"
}

// IsRetryable reports whether the queue should re-enqueue a job that failed
// with err. Corrupt source images never heal on retry; everything else is
// assumed transient up to the job's attempt cap.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrImageProcessing)
}
