package orchestrator

import (
	"errors"

	"github.com/pario-ai/lens/pkg/cache"
	"github.com/pario-ai/lens/pkg/lro"
)

// ErrorCode maps an error to a stable identifier callers can branch on.
// It returns "" for nil and "internal" for unclassified errors.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrRemoteAnalysisFailed):
		return "remote_analysis_failed"
	case errors.Is(err, ErrVideoDisabled):
		return "video_disabled"
	case errors.Is(err, cache.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, lro.ErrStartFailed):
		return "start_failed"
	case errors.Is(err, lro.ErrOperationFailed):
		return "operation_failed"
	case errors.Is(err, lro.ErrOperationTimedOut):
		return "operation_timed_out"
	case errors.Is(err, lro.ErrResultUnresolvable):
		return "result_unresolvable"
	case errors.Is(err, lro.ErrUnsupportedLocatorScheme):
		return "unsupported_locator_scheme"
	case errors.Is(err, lro.ErrDownloadFailed):
		return "download_failed"
	default:
		return "internal"
	}
}
