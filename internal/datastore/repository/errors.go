package repository

import "errors"

// Sentinel errors returned by repository implementations.
var (
	ErrRegionNotFound     = errors.New("region not found")
	ErrPredictionNotFound = errors.New("prediction not found")
	ErrAlertEventNotFound = errors.New("alert event not found")

	// ErrDuplicatePrediction signals that a prediction already exists for the
	// (region, horizon, cycle) key. Callers treat it as idempotent success
	// and fetch the existing record.
	ErrDuplicatePrediction = errors.New("prediction already recorded for cycle")
)
