package app

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TestCookieName carries the test token from the harness to the served
// application. The same value is sent as the User-Agent.
const TestCookieName = "SIMPLETEST_USER_AGENT"

// TestTokenWindow is how long a generated token stays valid.
const TestTokenWindow = 600 * time.Second

const keyFile = ".htkey"

// ErrInvalidTestToken is returned for tokens that look like test tokens but
// fail verification.
var ErrInvalidTestToken = errors.New("invalid test token")

var (
	testPrefixPattern = regexp.MustCompile(`^simpletest(\d+)$`)
	testTokenPattern  = regexp.MustCompile(`^(simpletest\d+)(;\d+;[^;]+;\S+)?$`)
)

// SandboxDir returns the directory a storage prefix lives in.
func SandboxDir(sandboxRoot, prefix string) (string, error) {
	m := testPrefixPattern.FindStringSubmatch(prefix)
	if m == nil {
		return "", fmt.Errorf("%q is not a test prefix", prefix)
	}
	return filepath.Join(sandboxRoot, m[1]), nil
}

// GenerateTestToken signs prefix with the key stored in its sandbox,
// creating the key on first use.
func GenerateTestToken(sandboxRoot, prefix string, now time.Time) (string, error) {
	dir, err := SandboxDir(sandboxRoot, prefix)
	if err != nil {
		return "", err
	}
	key, err := readKey(dir, true)
	if err != nil {
		return "", err
	}
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	s := hex.EncodeToString(salt)
	return prefix + ";" + ts + ";" + s + ";" + sign(key, prefix+ts+s), nil
}

// EncodeTestCookie escapes token for use as a cookie value. Tokens contain
// ';', which is not a valid cookie byte.
func EncodeTestCookie(token string) string {
	return url.QueryEscape(token)
}

// DecodeTestCookie reverses EncodeTestCookie. Undecodable values are
// returned unchanged so they fail token validation.
func DecodeTestCookie(value string) string {
	token, err := url.QueryUnescape(value)
	if err != nil {
		return value
	}
	return token
}

// IsTestToken reports whether value claims to be a test token.
func IsTestToken(value string) bool {
	return testTokenPattern.MatchString(value)
}

// ValidateTestToken verifies value and returns its storage prefix. Values
// that are not test tokens at all return "" and no error.
func ValidateTestToken(sandboxRoot, value string, now time.Time) (string, error) {
	m := testTokenPattern.FindStringSubmatch(value)
	if m == nil {
		return "", nil
	}
	prefix := m[1]
	parts := strings.Split(value, ";")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: unsigned", ErrInvalidTestToken)
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp", ErrInvalidTestToken)
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > TestTokenWindow || age < -TestTokenWindow {
		return "", fmt.Errorf("%w: expired", ErrInvalidTestToken)
	}

	dir, err := SandboxDir(sandboxRoot, prefix)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTestToken, err)
	}
	key, err := readKey(dir, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTestToken, err)
	}
	want := sign(key, prefix+parts[1]+parts[2])
	if !hmac.Equal([]byte(want), []byte(parts[3])) {
		return "", fmt.Errorf("%w: bad signature", ErrInvalidTestToken)
	}
	return prefix, nil
}

func sign(key []byte, msg string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func readKey(dir string, create bool) ([]byte, error) {
	path := filepath.Join(dir, keyFile)
	key, err := os.ReadFile(path)
	if err == nil {
		return key, nil
	}
	if !create || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	key = []byte(hex.EncodeToString(raw))
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write test key: %w", err)
	}
	return key, nil
}
