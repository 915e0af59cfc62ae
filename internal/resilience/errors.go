// Package resilience wraps fallible deployment operations with
// classification-driven retries, keeps the in-process deployment ledger,
// and turns raw failures into actionable operator reports.
package resilience

import (
	"errors"
	"strings"
)

// ErrorKind classifies a deployment failure. The kind decides retry
// eligibility and which recovery actions are suggested.
type ErrorKind string

const (
	// KindTransient covers network timeouts, rate limits and momentary
	// platform unavailability. Only this kind is retried automatically.
	KindTransient ErrorKind = "transient"

	// KindConfiguration covers missing files, scripts and variables.
	KindConfiguration ErrorKind = "configuration"

	// KindDependency covers missing packages or build tools.
	KindDependency ErrorKind = "dependency"

	// KindResource covers memory and disk exhaustion.
	KindResource ErrorKind = "resource"

	// KindAuthentication covers a logged-out platform CLI.
	KindAuthentication ErrorKind = "authentication"

	// KindUnknown is everything the classifier cannot place.
	KindUnknown ErrorKind = "unknown"
)

// OpError is the single error shape produced at the process/HTTP boundary,
// so downstream classification never inspects ad-hoc error structures.
type OpError struct {
	Kind      ErrorKind
	Message   string
	RawOutput string
	Err       error
}

func (e *OpError) Error() string {
	return e.Message
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError builds an OpError, classifying from the message and raw
// output when kind is not already known.
func NewOpError(kind ErrorKind, message, rawOutput string, err error) *OpError {
	if kind == "" || kind == KindUnknown {
		kind = ClassifyText(message + "\n" + rawOutput)
	}
	return &OpError{Kind: kind, Message: message, RawOutput: rawOutput, Err: err}
}

// Classify returns the kind of err. Errors that are not OpErrors are
// classified from their message text.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return ClassifyText(err.Error())
}

// Retryable reports whether err may be retried automatically.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}

// classification patterns, checked in order: the first matching family
// wins. Resource and auth failures often mention "error" text that would
// otherwise look transient, so they are checked first.
var (
	resourcePatterns = []string{
		"out of memory", "enomem", "enospc", "no space left on device",
		"javascript heap out of memory", "disk quota exceeded",
	}
	authPatterns = []string{
		"not authenticated", "not logged in", "authentication error",
		"please run wrangler login", "api token", "unauthorized", "403",
	}
	dependencyPatterns = []string{
		"command not found", "cannot find module", "module not found",
		"npm err! missing", "is not recognized", "executable file not found",
		"wrangler: not found", "npx: not found",
	}
	configPatterns = []string{
		"missing script", "no such file or directory", "package.json not found",
		"required variable", "is missing", "config file not found",
	}
	transientPatterns = []string{
		"timeout", "timed out", "etimedout", "econnreset", "econnrefused",
		"socket hang up", "rate limit", "too many requests", "429",
		"network", "temporarily unavailable", "502", "503", "504",
		"connection reset", "eai_again",
	}
)

// ClassifyText classifies an error from raw message/output text.
func ClassifyText(text string) ErrorKind {
	lower := strings.ToLower(text)

	match := func(patterns []string) bool {
		for _, p := range patterns {
			if strings.Contains(lower, p) {
				return true
			}
		}
		return false
	}

	switch {
	case match(resourcePatterns):
		return KindResource
	case match(authPatterns):
		return KindAuthentication
	case match(dependencyPatterns):
		return KindDependency
	case match(configPatterns):
		return KindConfiguration
	case match(transientPatterns):
		return KindTransient
	default:
		return KindUnknown
	}
}
