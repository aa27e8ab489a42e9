package response

import (
	"errors"
	"net/http"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/staff"
	"github.com/cmlabs-hris/settlement-backend-go/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Staff and attendance
	case errors.Is(err, staff.ErrStaffNotFound):
		NotFound(w, "Staff not found")
	case errors.Is(err, attendance.ErrInvalidDateRange):
		BadRequest(w, err.Error(), nil)

	// Settlement rules
	case errors.Is(err, settlement.ErrUnknownPaymentAccount):
		UnprocessableEntity(w, "Receiving account is not registered for this staff member")
	case errors.Is(err, settlement.ErrStaffInactive):
		UnprocessableEntity(w, "Staff member is inactive")
	case errors.Is(err, settlement.ErrPeriodBeforeJoining):
		UnprocessableEntity(w, "Period ends before the staff member joined")
	case errors.Is(err, settlement.ErrInvalidSettlementType):
		UnprocessableEntity(w, "Unknown settlement type")
	case errors.Is(err, settlement.ErrPaymentRecordNotFound):
		NotFound(w, "Payment record not found")

	// Conflicts. Checked before persistence so wrapped conflicts keep their status.
	case errors.Is(err, settlement.ErrPeriodAlreadySettled):
		Conflict(w, "Salary for this period is already settled")
	case errors.Is(err, settlement.ErrIdempotencyConflict):
		Conflict(w, "Idempotency key was already used with a different request")
	case errors.Is(err, settlement.ErrDuplicateIdempotencyKey):
		RetryableConflict(w, "Idempotency key was recorded concurrently, retry to read the result")
	case errors.Is(err, settlement.ErrSettlementInProgress):
		RetryableConflict(w, "A settlement with this idempotency key is in progress")
	case errors.Is(err, settlement.ErrConcurrencyConflict):
		RetryableConflict(w, "Ledger was modified concurrently, retry the request")

	case errors.Is(err, settlement.ErrPersistence):
		InternalServerError(w, "Settlement could not be stored")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
