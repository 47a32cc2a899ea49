package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Payment error taxonomy. Adapters and the manager wrap these with
	// fmt.Errorf("...: %w", err) so callers can match the kind with errors.Is
	// and pick the right retry/alerting policy. The manager never widens a
	// specific kind into a generic one.
	ErrValidation               = errors.New("validation failed")                  // bad request shape or amount; never retried
	ErrAuth                     = errors.New("authentication failed")              // credential/signature setup failure
	ErrNetwork                  = errors.New("network failure")                    // transient; retryable with backoff
	ErrConflictingState         = errors.New("conflicting terminal state")         // never auto-resolved; manual review
	ErrPersistenceInconsistency = errors.New("external side-effect not persisted") // triggers reconciliation

	ErrUnsupported         = errors.New("operation not supported by provider")
	ErrProviderUnavailable = errors.New("payment provider not configured")

	// Repository plumbing errors
	ErrInvalidExecContext = errors.New("invalid query execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
