package credentials

// Passphrase encryption for env files that hold client secrets and tokens

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ErrWrongPassphrase is returned when sealed content cannot be opened
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted content")

var sealMagic = []byte("lipsealed1")

const (
	saltSize   = 16
	keySize    = 32
	iterations = 100000
)

func deriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, iterations, keySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(c)
}

// Seal encrypts plaintext with a key derived from passphrase. The output
// carries its own salt and nonce.
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealMagic)+saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, sealMagic), nil
}

// Unseal reverses Seal
func Unseal(sealed, passphrase []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, sealMagic) {
		return nil, errors.New("content was not produced by Seal")
	}
	sealed = sealed[len(sealMagic):]

	if len(sealed) < saltSize {
		return nil, ErrWrongPassphrase
	}
	salt, sealed := sealed[:saltSize], sealed[saltSize:]

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, sealMagic)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}
