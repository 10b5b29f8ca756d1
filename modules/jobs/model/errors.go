package model

import "errors"

var (
	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrNoRows is returned when a submitted job has an empty companies table
	ErrNoRows = errors.New("job has no rows")

	// ErrAlreadyTerminal is returned when cancelling a job already in a
	// terminal status
	ErrAlreadyTerminal = errors.New("job already in a terminal status")

	// ErrJobNotFinished is returned when an export is requested before the
	// job has reached a terminal status
	ErrJobNotFinished = errors.New("job has not finished processing")
)

// ErrorCode represents error codes
type ErrorCode string

const (
	CodeJobNotFound      ErrorCode = "JOB_NOT_FOUND"
	CodeNoRows           ErrorCode = "NO_ROWS"
	CodeAlreadyTerminal  ErrorCode = "ALREADY_TERMINAL"
	CodeJobNotFinished   ErrorCode = "JOB_NOT_FINISHED"
	CodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// GetErrorCode maps errors to error codes
func GetErrorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return CodeJobNotFound
	case errors.Is(err, ErrNoRows):
		return CodeNoRows
	case errors.Is(err, ErrAlreadyTerminal):
		return CodeAlreadyTerminal
	case errors.Is(err, ErrJobNotFinished):
		return CodeJobNotFinished
	default:
		return CodeInternalError
	}
}

// GetErrorMessage returns a user-friendly error message
func GetErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, ErrNoRows):
		return "Job has no rows to process"
	case errors.Is(err, ErrAlreadyTerminal):
		return "Job is already in a terminal status"
	case errors.Is(err, ErrJobNotFinished):
		return "Job has not finished processing yet"
	default:
		return "Internal server error"
	}
}
