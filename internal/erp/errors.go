package erp

import (
	"errors"
	"fmt"

	"basket-order-service/internal/apperr"
)

// ErrEmptyResult marks a call that succeeded at the transport level but returned no payload.
// Search call sites may treat it as zero rows; mutation call sites must treat it as failure.
var ErrEmptyResult = errors.New("backend returned no result")

// AuthError means the backend rejected the configured credentials. It is fatal for the request.
type AuthError struct {
	Reason string
	Cause  error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("erp authentication failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("erp authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error    { return e.Cause }
func (e *AuthError) Code() apperr.Code { return apperr.CodeAuth }

// RemoteError is a non-success transport response.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("erp responded with status %d: %s", e.Status, e.Body)
}

func (e *RemoteError) Code() apperr.Code { return apperr.CodeRemote }

// RemoteCallError is a call the backend accepted but could not answer with a usable payload,
// either because it raised an RPC fault or because the result was null.
type RemoteCallError struct {
	Resource  string
	Operation string
	Message   string
	Cause     error
}

func (e *RemoteCallError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("erp call %s.%s failed: %s", e.Resource, e.Operation, msg)
}

func (e *RemoteCallError) Unwrap() error    { return e.Cause }
func (e *RemoteCallError) Code() apperr.Code { return apperr.CodeRemote }

// IdentityExtractionError is raised when a create call returns an id in an unrecognized shape.
type IdentityExtractionError struct {
	Raw string
}

func (e *IdentityExtractionError) Error() string {
	return fmt.Sprintf("cannot extract record id from %s", e.Raw)
}

func (e *IdentityExtractionError) Code() apperr.Code { return apperr.CodeRemote }

// IsEmptyResult reports whether err is a RemoteCallError caused by a null result.
func IsEmptyResult(err error) bool {
	return errors.Is(err, ErrEmptyResult)
}
