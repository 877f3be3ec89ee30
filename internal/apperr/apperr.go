// Package apperr holds the error kinds shared by the store, the object store
// adapters and the HTTP layer. Callers wrap them with fmt.Errorf("%w: ...")
// and test with errors.Is.
package apperr

import "errors"

var (
	// ErrConfig means a required external dependency is not configured. A
	// database that is not configured also carries ErrDatabase.
	ErrConfig = errors.New("not configured")
	// ErrConnection means the database could not be reached or the pool is exhausted.
	ErrConnection = errors.New("storage unavailable")
	// ErrConflict is a uniqueness violation such as a duplicate organization email.
	ErrConflict = errors.New("conflict")
	// ErrAuth is a credential mismatch.
	ErrAuth = errors.New("invalid credentials")
	// ErrStorage is a blob upload, overwrite or delete failure.
	ErrStorage = errors.New("object storage failure")
	// ErrDatabase is any other SQL failure.
	ErrDatabase = errors.New("database error")
	// ErrInvalid is a malformed or incomplete request.
	ErrInvalid = errors.New("invalid request")
)

// Unavailable reports whether err means the database cannot serve requests at all.
func Unavailable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrConfig)
}
