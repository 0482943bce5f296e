package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

var (
	// ErrOracleTimeout is returned when every attempt at a completion timed out.
	ErrOracleTimeout = errors.New("llm: oracle timed out")
	// ErrOracleUnavailable is returned when the provider failed and retries were
	// exhausted or the failure is not retryable.
	ErrOracleUnavailable = errors.New("llm: oracle unavailable")
)

// IsOracleFailure reports whether err came from the completion provider
// rather than from the caller's handling of the response.
func IsOracleFailure(err error) bool {
	return errors.Is(err, ErrOracleTimeout) || errors.Is(err, ErrOracleUnavailable)
}

// StatusError is returned by the HTTP based providers on a non-200 reply.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether a provider error is worth another attempt.
// Client errors other than 408 and 429 are not.
func Retryable(err error) bool {
	return classifyError(err).retryable()
}

type failureClass int

const (
	failureTimeout failureClass = iota + 1
	failureRateLimit
	failureServer
	failureClient
)

func (c failureClass) retryable() bool {
	return c != failureClient
}

func (c failureClass) String() string {
	switch c {
	case failureTimeout:
		return "timeout"
	case failureRateLimit:
		return "rate_limit"
	case failureServer:
		return "server"
	default:
		return "client"
	}
}

var statusCodeRe = regexp.MustCompile(`status(?:\s+code)?[:=\s]+(\d{3})`)

// classifyError maps a provider error onto a retry class. Typed SDK errors
// are checked first; the message heuristics cover the HTTP providers.
func classifyError(err error) failureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}

	if code := statusCode(err); code != 0 {
		return classifyStatus(code)
	}

	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return classifyStatus(code)
		}
	}
	switch {
	case strings.Contains(msg, "rate limit"):
		return failureRateLimit
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"), strings.Contains(msg, "eof"):
		return failureServer
	default:
		return failureServer
	}
}

func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var oe *openai.APIError
	if errors.As(err, &oe) {
		return oe.HTTPStatusCode
	}
	var re *openai.RequestError
	if errors.As(err, &re) {
		return re.HTTPStatusCode
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	var ge genai.APIError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}

func classifyStatus(code int) failureClass {
	switch {
	case code == http.StatusTooManyRequests:
		return failureRateLimit
	case code == http.StatusRequestTimeout:
		return failureTimeout
	case code >= 500:
		return failureServer
	default:
		return failureClient
	}
}
