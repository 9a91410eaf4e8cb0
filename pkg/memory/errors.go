package memory

import (
	"errors"
	"fmt"
)

// StorageError reports a local filesystem failure: an unwritable root, a
// failed rename or a corrupt record file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// RemoteUnavailableError reports a remote tier call that failed after the
// retry budget was spent.
type RemoteUnavailableError struct {
	Op       string
	Attempts int
	Err      error

	// Rejected is set when the remote answered and refused the call, so
	// sending the same request again cannot succeed.
	Rejected bool
}

func (e *RemoteUnavailableError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("remote rejected %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote unavailable: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

// ConfigError reports a configuration value that was missing or invalid and
// has been replaced by its default.
type ConfigError struct {
	Key     string
	Value   any
	Default any
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s=%v %s, using default %v", e.Key, e.Value, e.Reason, e.Default)
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsRemoteRejection reports whether err wraps a remote call the remote
// refused outright.
func IsRemoteRejection(err error) bool {
	var re *RemoteUnavailableError
	return errors.As(err, &re) && re.Rejected
}

// IsRemoteUnavailable reports whether err is or wraps a *RemoteUnavailableError.
func IsRemoteUnavailable(err error) bool {
	var re *RemoteUnavailableError
	return errors.As(err, &re)
}
