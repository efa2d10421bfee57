package domain

import "errors"

var (
	// ErrConfig indicates required configuration is missing or unusable.
	ErrConfig = errors.New("invalid configuration")
	// ErrAuth indicates a credential exchange was rejected by the platform.
	ErrAuth = errors.New("authentication failed")
	// ErrRateLimit indicates the platform throttled the request.
	ErrRateLimit = errors.New("rate limited")
	// ErrNetwork indicates a transport-level failure reaching the platform.
	ErrNetwork = errors.New("network error")
	// ErrDownload indicates the activity file could not be resolved or fetched.
	ErrDownload = errors.New("download failed")
	// ErrFormat indicates a file was not recognized as a FIT activity container.
	ErrFormat = errors.New("unrecognized activity file")
	// ErrUpload indicates the destination rejected the submitted file.
	ErrUpload = errors.New("upload failed")
	// ErrState indicates an operation was invoked before its session was ready.
	ErrState = errors.New("invalid session state")
)
