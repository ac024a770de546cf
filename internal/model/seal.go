package model

import (
	"bytes"
	"fmt"

	"github.com/fernet/fernet-go"
)

// GenerateKey returns a new random key in the url-safe base64 form expected in ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return k.Encode(), nil
}

// Seal encrypts weights into a Fernet token readable by the secure variant.
func Seal(weights []byte, key string) ([]byte, error) {
	k, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	tok, err := fernet.EncryptAndSign(weights, k)
	if err != nil {
		return nil, fmt.Errorf("encrypt weights: %w", err)
	}
	return tok, nil
}

func parseKey(key string) (*fernet.Key, error) {
	if key == "" {
		return nil, &LoadError{Stage: StageKey, Err: ErrMissingKey}
	}
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return nil, &LoadError{Stage: StageKey, Err: ErrInvalidKey}
	}
	return k, nil
}

// open verifies and decrypts a Fernet token. Tokens never expire.
func open(blob []byte, key *fernet.Key) ([]byte, error) {
	blob = bytes.TrimSpace(blob)
	if len(blob) == 0 {
		return nil, ErrDecrypt
	}
	msg := fernet.VerifyAndDecrypt(blob, 0, []*fernet.Key{key})
	if msg == nil {
		return nil, ErrDecrypt
	}
	return msg, nil
}
