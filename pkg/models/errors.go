package models

import "errors"

var (
	// ErrAuth means the portal login handshake failed. Fatal.
	ErrAuth = errors.New("authentication failed")
	// ErrConfig means the field table or settings are missing or malformed. Fatal.
	ErrConfig = errors.New("invalid configuration")
	// ErrNotFound means a remote file is gone or no longer authorized.
	ErrNotFound = errors.New("file not found on server")
	// ErrTimeout means the server did not answer within the connect timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrTransfer covers any other failure while fetching a file.
	ErrTransfer = errors.New("transfer failed")
	// ErrGaveUp is returned when the optional pass limit is reached.
	ErrGaveUp = errors.New("giving up after maximum number of passes")
)

// IsTransferFailure reports whether err ends a pass rather than the run.
func IsTransferFailure(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransfer)
}
