package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	FormatGCM       = "GCM3NCR0"
	FormatLegacyCBC = "3NCR0PTD"
	FormatPlain     = "plain"

	saltLen    = 16
	nonceLen   = 12
	kdfRounds  = 100000
	keyLen     = 32
	gcmTagSize = 16
)

var ErrNoPassword = errors.New("encrypted object but no password configured")

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfRounds, keyLen, sha256.New)
}

// Seal encrypts data into the GCM envelope:
// magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
func Seal(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(FormatGCM)+saltLen+nonceLen+len(data)+gcmTagSize)
	out = append(out, FormatGCM...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Open reverses Seal. It also reads the legacy CBC envelope; data without a known
// magic number is returned as-is with FormatPlain.
func Open(data []byte, password string) ([]byte, string, error) {
	if len(data) < 8 {
		return data, FormatPlain, nil
	}
	switch string(data[:8]) {
	case FormatGCM:
		if password == "" {
			return nil, FormatGCM, ErrNoPassword
		}
		out, err := openGCM(data, password)
		return out, FormatGCM, err
	case FormatLegacyCBC:
		if password == "" {
			return nil, FormatLegacyCBC, ErrNoPassword
		}
		out, err := openLegacyCBC(data, password)
		return out, FormatLegacyCBC, err
	}
	return data, FormatPlain, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func openGCM(data []byte, password string) ([]byte, error) {
	if len(data) < 8+saltLen+nonceLen+gcmTagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	salt := data[8 : 8+saltLen]
	nonce := data[8+saltLen : 8+saltLen+nonceLen]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, data[8+saltLen+nonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}

// openLegacyCBC reads magic(8) + hash(32) + length(8) + salt(16) + iv(16) + ciphertext.
func openLegacyCBC(data []byte, password string) ([]byte, error) {
	if len(data) < 8+32+8+16+16 {
		return nil, fmt.Errorf("legacy CBC data too short: %d bytes", len(data))
	}
	storedHash := data[8:40]
	length := binary.BigEndian.Uint64(data[40:48])
	enc := data[48:]
	if uint64(len(enc)) != length {
		return nil, fmt.Errorf("length mismatch: expected %d, got %d", length, len(enc))
	}
	sum := sha256.Sum256(enc)
	if !bytes.Equal(storedHash, sum[:]) {
		return nil, errors.New("hash verification failed - data corrupted")
	}
	salt, iv, ct := enc[:16], enc[16:32], enc[32:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a multiple of block size")
	}
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	return unpad(plain)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
