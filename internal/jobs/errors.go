package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tendant/newscast/internal/mixer"
	"github.com/tendant/newscast/pkg/schema"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrQueueFull         = errors.New("job queue is full")
	ErrShuttingDown      = errors.New("orchestrator is shutting down")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrAllRendersFailed  = errors.New("every requested format failed to render")
)

// ValidationError rejects a submission before any job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func classifyError(err error) schema.FailureType {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrValidation) {
		return schema.FailureTypeValidation
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return schema.FailureTypeRetryable
	}
	if errors.Is(err, mixer.ErrSpeechMissing) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return schema.FailureTypePermanent
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") {
		return schema.FailureTypeRetryable
	}
	if strings.Contains(errStr, "no such file") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "executable file not found") ||
		strings.Contains(errStr, "Invalid data found") {
		return schema.FailureTypePermanent
	}

	// Default to retryable for unknown errors
	return schema.FailureTypeRetryable
}
