package bigquery

import (
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

// ServiceError is returned by every sample when the remote call (or the job it started) fails.
type ServiceError struct {
	// Op is the operation that failed, e.g. "create_table".
	Op string
	// Code is the HTTP status the API responded with, 0 when the failure came from a finished job.
	Code int
	// Reason is the BigQuery error reason, e.g. "notFound" or "duplicate".
	Reason string
	Err    error
}

func newServiceError(op string, err error) *ServiceError {
	svcErr := &ServiceError{Op: op, Err: err}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		svcErr.Code = apiErr.Code
		if len(apiErr.Errors) > 0 {
			svcErr.Reason = apiErr.Errors[0].Reason
		}

		return svcErr
	}

	// Jobs that finish in error carry their own error type, there's no HTTP status attached.
	var jobErr *bigquery.Error
	if errors.As(err, &jobErr) {
		svcErr.Reason = jobErr.Reason
	}

	return svcErr
}

func (s *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: %v", s.Op, s.Err)
}

func (s *ServiceError) Unwrap() error {
	return s.Err
}

// classify returns the code and reason of err, which doesn't need to be a [*ServiceError].
func classify(err error) (int, string, bool) {
	if err == nil {
		return 0, "", false
	}

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = newServiceError("", err)
	}

	return svcErr.Code, svcErr.Reason, true
}

func IsNotFound(err error) bool {
	code, reason, ok := classify(err)
	return ok && (code == http.StatusNotFound || reason == "notFound")
}

func IsAlreadyExists(err error) bool {
	code, reason, ok := classify(err)
	return ok && (code == http.StatusConflict || reason == "duplicate")
}

func IsPermissionDenied(err error) bool {
	code, reason, ok := classify(err)
	return ok && (code == http.StatusForbidden || reason == "accessDenied")
}

func IsInvalid(err error) bool {
	code, reason, ok := classify(err)
	if !ok {
		return false
	}

	switch reason {
	case "invalid", "invalidQuery":
		return true
	}

	return code == http.StatusBadRequest
}
