package roomkey

import "errors"

var (
	ErrEncryptionFailed  = errors.New("encryption failed")
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrBadPadding        = errors.New("invalid padding")
	ErrMagicMismatch     = errors.New("identifier mismatch")
)
