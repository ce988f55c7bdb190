package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// StatusError is a non-2xx answer from an HTTP collaborator.
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

// ReadStatusError captures the head of resp's body for the error message.
func ReadStatusError(service, operation string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, e.Body)
}

// Transient reports whether the same request may succeed later.
func (e *StatusError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

// ClassifyTransport classifies failures of HTTP collaborators.
// Status errors count against the breaker only when transient; network errors always do.
func ClassifyTransport(err error) ErrorClassification {
	if err == nil || isCallerDone(err) {
		return ErrorClassification{}
	}
	var status interface{ Transient() bool }
	if errors.As(err, &status) {
		t := status.Transient()
		return ErrorClassification{Temporary: t, RecordFailure: t}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Temporary: true, RecordFailure: true}
	}
	return ErrorClassification{RecordFailure: true}
}

func isCallerDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
