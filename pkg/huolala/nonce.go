package huolala

import "github.com/google/uuid"

// NewNonce returns a fresh random nonce in 8-4-4-4-12 lowercase hex form.
func NewNonce() string {
	return uuid.NewString()
}
