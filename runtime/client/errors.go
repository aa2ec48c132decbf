package client

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrClosed is returned by calls issued after the client was closed.
	ErrClosed = errors.New("client: closed")
	// ErrQueryRejected is returned by Query when the server rejected the
	// query because of the workflow state.
	ErrQueryRejected = errors.New("client: query rejected")
)

type (
	// TimeoutError reports that a call ran past its deadline, either because
	// the server answered DEADLINE_EXCEEDED or because the deadline elapsed
	// between attempts.
	TimeoutError struct {
		// Method is the remote method name.
		Method string
		// Attempts is the number of attempts made.
		Attempts int
		// Cause is the error of the last attempt, if any.
		Cause error
	}

	// NonRetryableError wraps a terminal service error. The original status
	// is preserved and reachable through GRPCStatus.
	NonRetryableError struct {
		// Method is the remote method name.
		Method string
		// Attempts is the number of attempts made.
		Attempts int
		// Cause is the error returned by the transport.
		Cause error
	}

	// ExhaustedError reports that the attempt budget was spent on retryable
	// failures.
	ExhaustedError struct {
		// Method is the remote method name.
		Method string
		// Attempts is the number of attempts made.
		Attempts int
		// LastError is the error of the last attempt.
		LastError error
	}
)

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("client: %s timed out after %d attempts", e.Method, e.Attempts)
	}
	return fmt.Sprintf("client: %s timed out after %d attempts: %v", e.Method, e.Attempts, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error { return e.Cause }

// GRPCStatus returns a DEADLINE_EXCEEDED status.
func (e *TimeoutError) GRPCStatus() *status.Status {
	return status.New(codes.DeadlineExceeded, e.Error())
}

// Error implements the error interface.
func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("client: %s failed: %v", e.Method, e.Cause)
}

// Unwrap returns the underlying error.
func (e *NonRetryableError) Unwrap() error { return e.Cause }

// GRPCStatus returns the status of the underlying error.
func (e *NonRetryableError) GRPCStatus() *status.Status {
	return statusOf(e.Cause)
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("client: %s failed after %d attempts: %v", e.Method, e.Attempts, e.LastError)
}

// Unwrap returns the underlying error.
func (e *ExhaustedError) Unwrap() error { return e.LastError }

// GRPCStatus returns the status of the last attempt.
func (e *ExhaustedError) GRPCStatus() *status.Status {
	return statusOf(e.LastError)
}

// Code classifies err into a gRPC status code. Errors that carry no status
// are reported as Unknown, except for context errors which map to Canceled
// and DeadlineExceeded.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Unknown
	}
}

// IsRetryable reports whether a call failing with code may be retried.
func IsRetryable(code codes.Code) bool {
	switch code {
	case codes.ResourceExhausted, codes.Unavailable, codes.Unknown:
		return true
	default:
		return false
	}
}

func statusOf(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}
	return status.New(Code(err), fmt.Sprint(err))
}
