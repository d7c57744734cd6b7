// Package encryption provides the policies used to protect payloads written to
// the journal.
package encryption

import (
	"errors"
)

// ErrDecryptionFailed is returned when a payload can not be decrypted, either
// because it was encrypted with a different key or because it has been
// tampered with.
var ErrDecryptionFailed = errors.New("payload could not be decrypted")

// Policy encrypts and decrypts journal payloads.
//
// Implementations must be safe for concurrent use.
type Policy interface {
	// Encrypt returns the encrypted form of plaintext.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt returns the plaintext of a payload produced by Encrypt().
	//
	// It returns ErrDecryptionFailed if the payload was not produced by this
	// policy's key.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// None is a Policy that leaves payloads unchanged.
var None Policy = none{}

type none struct{}

func (none) Encrypt(p []byte) ([]byte, error) { return p, nil }
func (none) Decrypt(c []byte) ([]byte, error) { return c, nil }
