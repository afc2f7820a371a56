package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encryptionMagic    = "MDVE1"
	encryptionSaltSize = 16
	pbkdf2Iterations   = 100000
	encryptionKeySize  = 32
)

// Encryptor seals container bytes with AES-256-GCM under a key derived from
// a passphrase. Every container gets its own salt and nonce.
type Encryptor struct {
	passphrase []byte
}

// NewEncryptor creates an encryptor for passphrase
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, NewConfigurationError("encryption passphrase is required when encryption is enabled", nil)
	}
	return &Encryptor{passphrase: []byte(passphrase)}, nil
}

// Encrypt returns magic || salt || nonce || ciphertext
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	salt := make([]byte, encryptionSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, NewEncryptionError("failed to generate salt", err)
	}

	gcm, err := e.cipher(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, NewEncryptionError("failed to generate nonce", err)
	}

	out := make([]byte, 0, len(encryptionMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, encryptionMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, []byte(encryptionMagic)), nil
}

// Decrypt reverses Encrypt
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(encryptionMagic)) {
		return nil, NewInvalidEncodingError("payload is not an encrypted container", nil)
	}
	data = data[len(encryptionMagic):]

	if len(data) < encryptionSaltSize {
		return nil, NewInvalidEncodingError("encrypted payload too short", nil)
	}
	salt, rest := data[:encryptionSaltSize], data[encryptionSaltSize:]

	gcm, err := e.cipher(salt)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, NewInvalidEncodingError("encrypted payload too short", nil)
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(encryptionMagic))
	if err != nil {
		return nil, NewEncryptionError("failed to decrypt container: wrong passphrase or corrupted data", err)
	}
	return plaintext, nil
}

func (e *Encryptor) cipher(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, pbkdf2Iterations, encryptionKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewEncryptionError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, NewEncryptionError("failed to create GCM cipher", err)
	}
	return gcm, nil
}
