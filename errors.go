package pushbridge

import "errors"

var (
	// ErrBackendInit is returned by Launch when the messaging backend cannot be configured.
	ErrBackendInit = errors.New("messaging backend init failed")

	// ErrPermissionDenied marks the log entry written when notification permission is not granted.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrRegistrationFailed marks the log entry written when the OS fails to issue a device token.
	ErrRegistrationFailed = errors.New("remote notification registration failed")
)
