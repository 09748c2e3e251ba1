package blobstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/prism-io/prism/pkg/keymanager"
	"github.com/prism-io/prism/pkg/prismerr"
	"github.com/prism-io/prism/pkg/types"
	"golang.org/x/crypto/chacha20poly1305"
)

// seal encrypts plaintext under the named AEAD kind using key, prepending
// the nonce to the returned ciphertext (mirroring the reference secrets
// manager's Seal(nonce, nonce, plaintext, nil) convention).
func seal(kind types.BlobEncryptionKind, key *keymanager.Key, plaintext []byte) ([]byte, error) {
	aead, err := aeadFor(kind, key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, prismerr.Wrap(prismerr.KindFatal, "nonce_generation_failed", "generate AEAD nonce", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open reverses seal.
func open(kind types.BlobEncryptionKind, key *keymanager.Key, ciphertext []byte) ([]byte, error) {
	aead, err := aeadFor(kind, key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, prismerr.New(prismerr.KindConsistency, "ciphertext_too_short", "encrypted blob shorter than AEAD nonce")
	}
	nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindConsistency, "decrypt_failed", "AEAD open failed, ciphertext may be corrupt or tampered", err)
	}
	return plaintext, nil
}

func aeadFor(kind types.BlobEncryptionKind, key *keymanager.Key) (cipher.AEAD, error) {
	switch kind {
	case types.EncryptionAES256GCM:
		block, err := aes.NewCipher(key.Secret[:])
		if err != nil {
			return nil, prismerr.Wrap(prismerr.KindFatal, "cipher_init_failed", "create AES cipher", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, prismerr.Wrap(prismerr.KindFatal, "cipher_init_failed", "create GCM mode", err)
		}
		return gcm, nil
	case types.EncryptionChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key.Secret[:])
		if err != nil {
			return nil, prismerr.Wrap(prismerr.KindFatal, "cipher_init_failed", "create ChaCha20-Poly1305 cipher", err)
		}
		return aead, nil
	default:
		return nil, prismerr.New(prismerr.KindPrecondition, "unsupported_encryption_kind", string(kind))
	}
}
