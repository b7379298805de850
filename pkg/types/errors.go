package types

import "errors"

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrDataDirEmpty   = errors.New("data dir must not be empty")
)

// Status and lifecycle errors.
var (
	ErrInvalidStatus     = errors.New("invalid status value")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDraftLocked       = errors.New("draft is finalized or submitted")
	ErrDraftLoading      = errors.New("draft is still loading")
)

// Crypto errors.
var (
	ErrDecryptFailed  = errors.New("decryption failed")
	ErrMalformedToken = errors.New("malformed ciphertext token")
	ErrKeyStore       = errors.New("secret store unavailable")
)

// Storage errors.
var (
	ErrPartialDelete = errors.New("partial deletion")
	ErrFormExists    = errors.New("form already exists")
)
