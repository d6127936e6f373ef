package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Service errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrTimeout            = fmt.Errorf("operation timed out")

	// Task errors
	ErrTaskNotFound        = fmt.Errorf("task not found")
	ErrTaskNotActive       = fmt.Errorf("task is not running")
	ErrAlreadyScheduled    = fmt.Errorf("task already scheduled")
	ErrStrategiesExhausted = fmt.Errorf("all network strategies exhausted")
	ErrOutputNotFound      = fmt.Errorf("downloaded file not found")
	ErrCancelledByUser     = fmt.Errorf("cancelled by user")
	ErrPoolClosed          = fmt.Errorf("execution pool is shut down")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrEmptyURLList    = fmt.Errorf("no URLs provided")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
