package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/tessera/internal/driver"
	"github.com/samcharles93/tessera/internal/schedule"
)

var ErrNotFound = errors.New("schedule not found")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return driver.ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusOf maps a scheduling failure to an HTTP status and error type.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, driver.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, schedule.ErrInvalidGraphShape):
		return http.StatusUnprocessableEntity, "invalid_graph_shape"
	case errors.Is(err, schedule.ErrUnsupportedPattern):
		return http.StatusUnprocessableEntity, "unsupported_pattern"
	case errors.Is(err, schedule.ErrInstructionMappingMiss):
		return http.StatusUnprocessableEntity, "instruction_mapping_miss"
	case errors.Is(err, schedule.ErrCapacityInfeasible):
		return http.StatusUnprocessableEntity, "capacity_infeasible"
	}
	return http.StatusInternalServerError, "server_error"
}
