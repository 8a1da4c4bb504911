package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// APIKeyPrefix marks every issued key so it can be recognized in logs and secret scanners
	APIKeyPrefix = "prr_"

	apiKeyRandomBytes = 20
	apiKeyDisplayLen  = 12
)

// GenerateAPIKey returns a new plaintext key and its display prefix
func GenerateAPIKey() (key, display string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	key = APIKeyPrefix + hex.EncodeToString(buf)
	return key, key[:apiKeyDisplayLen], nil
}

// HashAPIKey is the salted one-way hash stored in place of the key
func HashAPIKey(salt, key string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// WellFormedAPIKey reports whether key has the issued shape
func WellFormedAPIKey(key string) bool {
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return false
	}
	body := key[len(APIKeyPrefix):]
	if len(body) != apiKeyRandomBytes*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}
