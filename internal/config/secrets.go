package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Secret names read from the trusted configuration channel.
const (
	EnvAccountSID    = "ACCOUNT_SID"
	EnvAuthToken     = "AUTH_TOKEN"
	EnvEncryptionKey = "ENCRYPTION_KEY"
)

// Secrets holds credentials for the relay-token service and the weights key.
// It is injected into the constructors that need it and never logged.
type Secrets struct {
	AccountSID    string
	AuthToken     string
	EncryptionKey string
}

// LoadSecrets loads envFile (if it exists) into the environment and reads the secrets.
// Variables already present in the environment take precedence over the file.
func LoadSecrets(envFile string) (Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	return Secrets{
		AccountSID:    os.Getenv(EnvAccountSID),
		AuthToken:     os.Getenv(EnvAuthToken),
		EncryptionKey: os.Getenv(EnvEncryptionKey),
	}, nil
}

// HasRelayCredentials reports whether both relay-token credentials are set.
func (s Secrets) HasRelayCredentials() bool {
	return s.AccountSID != "" && s.AuthToken != ""
}

// String redacts every value.
func (s Secrets) String() string {
	return fmt.Sprintf("Secrets{AccountSID:%s AuthToken:%s EncryptionKey:%s}",
		redact(s.AccountSID), redact(s.AuthToken), redact(s.EncryptionKey))
}

// GoString redacts every value for %#v.
func (s Secrets) GoString() string {
	return s.String()
}

func redact(v string) string {
	if v == "" {
		return "<unset>"
	}
	return "<redacted>"
}
