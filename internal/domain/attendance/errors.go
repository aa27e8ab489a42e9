package attendance

import "errors"

var (
	ErrInvalidDateRange = errors.New("attendance date range is invalid")
)
