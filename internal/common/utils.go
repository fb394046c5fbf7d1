package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString returns size random bytes encoded as hex, so the
// resulting string is twice as long as size.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// VersionOrDefault maps an empty stored template version to DefaultTemplateVersion.
func VersionOrDefault(v string) string {
	if v == "" {
		return DefaultTemplateVersion
	}
	return v
}
