package roomkey

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Magic is prepended to every plaintext so a receiver can tell it decrypted
// with the right key.
const Magic = "QsSama"

// Envelope layout: base64( iv[16] || AES-CBC(Magic || plaintext, PKCS#7) ).

// Encrypt seals plaintext under key with a fresh random IV.
func Encrypt(plaintext string, key Key) (string, error) {
	return encryptWith(rand.Reader, plaintext, key)
}

func encryptWith(random io.Reader, plaintext string, key Key) (string, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	data := pad(append([]byte(Magic), plaintext...), aes.BlockSize)

	out := make([]byte, aes.BlockSize+len(data))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(random, iv); err != nil {
		return "", fmt.Errorf("%w: read iv: %v", ErrEncryptionFailed, err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], data)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt and returns Magic followed by the plaintext.
func Decrypt(envelope string, key Key) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: length %d", ErrMalformedEnvelope, len(raw))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	iv, body := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Open decrypts envelope and strips the magic identifier, failing with
// ErrMagicMismatch when the key was wrong.
func Open(envelope string, key Key) (string, error) {
	plain, err := Decrypt(envelope, key)
	if err != nil {
		return "", err
	}
	if len(plain) < len(Magic) || plain[:len(Magic)] != Magic {
		return "", ErrMagicMismatch
	}
	return plain[len(Magic):], nil
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
