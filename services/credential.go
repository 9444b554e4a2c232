package services

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/scrypt"

	"campaign-mailer/utils"
)

// ErrUnrecoverableCredential means a stored mailbox secret cannot be revealed
// under the current key. The operator has to enter it again.
var ErrUnrecoverableCredential = errors.New("stored app password cannot be recovered, please re-enter your Gmail app password")

// Key derivation parameters. The salt is fixed so that one process-wide key
// always derives the same cipher key.
const (
	kdfSalt   = "salt"
	kdfN      = 16384
	kdfR      = 8
	kdfP      = 1
	kdfKeyLen = 32
)

// CredentialCodec protects mailbox secrets with AES-256-CBC under a key
// derived from the process-wide encryption key. The stored form is
// hex(iv) + ":" + hex(ciphertext).
type CredentialCodec struct {
	block cipher.Block
}

// NewCredentialCodec derives the cipher key from encryptionKey.
func NewCredentialCodec(encryptionKey string) (*CredentialCodec, error) {
	if encryptionKey == "" {
		return nil, errors.New("encryption key is empty")
	}
	key, err := scrypt.Key([]byte(encryptionKey), []byte(kdfSalt), kdfN, kdfR, kdfP, kdfKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create credential cipher: %w", err)
	}
	return &CredentialCodec{block: block}, nil
}

// Protect encrypts secret under a fresh random IV, so two calls with the
// same input never return the same value.
func (c *CredentialCodec) Protect(secret string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	plaintext := pkcs7Pad([]byte(secret), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, plaintext)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Reveal decrypts a value produced by Protect. Anything else, including the
// legacy hashed format without a ':' separator, yields
// ErrUnrecoverableCredential.
func (c *CredentialCodec) Reveal(protected string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(protected, ":")
	if !ok {
		return "", ErrUnrecoverableCredential
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrUnrecoverableCredential
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrUnrecoverableCredential
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil || !utf8.Valid(unpadded) {
		return "", ErrUnrecoverableCredential
	}
	return string(unpadded), nil
}

// IsLegacyCredential reports whether a stored value predates reversible
// protection.
func IsLegacyCredential(protected string) bool {
	return !strings.Contains(protected, ":")
}

// VerifyReachable opens an authenticated session with the given mailbox
// credentials and closes it again without sending anything. Any
// authentication or connectivity failure is reported as false.
func VerifyReachable(ctx context.Context, t Transport, mailboxAddress, secret string) bool {
	if err := t.Verify(ctx, mailboxAddress, secret); err != nil {
		log.Printf("[credential] connection test failed for %s: %v", utils.RedactEmail(mailboxAddress), err)
		return false
	}
	return true
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
