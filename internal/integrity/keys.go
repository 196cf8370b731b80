// Package integrity derives the per-navigation tokens that bind a loaded page
// to the active exam configuration.
//
// Two independent anchors are produced for every URL:
//
//	configurationKey = hex(HMAC-SHA256(secret, url))
//	browserExamKey   = hex(HMAC-SHA256(HKDF-SHA256(secret, salt, "browser-exam-key"), url))
//
// where url is the output of NormalizeURL. A remote verifier holding only the
// secret can check the configuration key; the exam key additionally proves
// possession of the salt. Both are deterministic and require the secret.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// BrowserExamKeyDomain is the HKDF info string separating the exam key from
// any other key derived from the same secret.
const BrowserExamKeyDomain = "browser-exam-key"

// ComputeConfigurationKey returns the configuration key for url.
func ComputeConfigurationKey(secret []byte, rawURL string) (string, error) {
	if len(secret) == 0 {
		return "", invalidInput("", "empty configuration secret")
	}
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	return keyedHash(secret, normalized), nil
}

// ComputeBrowserExamKey returns the browser exam key for url.
func ComputeBrowserExamKey(secret, salt []byte, rawURL string) (string, error) {
	if len(secret) == 0 {
		return "", invalidInput("", "empty configuration secret")
	}
	if len(salt) == 0 {
		return "", invalidInput("", "empty browser exam key salt")
	}
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	key, err := deriveExamKey(secret, salt)
	if err != nil {
		return "", err
	}
	defer wipe(key)

	return keyedHash(key, normalized), nil
}

func deriveExamKey(secret, salt []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, salt, []byte(BrowserExamKeyDomain))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, &InvalidInputError{Reason: "HKDF expand failed", Err: err}
	}
	return key, nil
}

func keyedHash(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
