package game

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	codeDelimiter = "-"
	codeSuffixLen = 6

	// codeAlphabet deliberately excludes the delimiter (and lookalike
	// characters), so splitting the code on "-" is unambiguous: the id
	// segment is decimal digits, the timestamp and suffix segments are
	// base36 / this alphabet, and none of them can contain "-".
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateCode builds a shareable referral code for a player:
// <decimal id>-<base36 timestamp>-<random suffix>. The embedded id is what
// activation parses back out; the suffix keeps codes effectively unique even
// when regenerated within the same instant.
func GenerateCode(telegramID int64) (string, error) {
	if telegramID <= 0 {
		return "", fmt.Errorf("generate referral code: invalid telegram id %d", telegramID)
	}
	suffix := make([]byte, codeSuffixLen)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate referral code: %w", err)
	}
	for i := range suffix {
		suffix[i] = codeAlphabet[int(suffix[i])%len(codeAlphabet)]
	}
	ts := strconv.FormatInt(time.Now().Unix(), 36)
	return strconv.FormatInt(telegramID, 10) + codeDelimiter + ts + codeDelimiter + string(suffix), nil
}

// ValidateCode checks structure only: three delimited segments with a
// positive decimal first segment. It says nothing about whether the referrer
// exists; that is a separate lookup.
func ValidateCode(code string) bool {
	_, err := ParseCode(code)
	return err == nil
}

// ParseCode extracts the referrer id from a code, or ErrInvalidCode.
func ParseCode(code string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(code), codeDelimiter)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return 0, ErrInvalidCode
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCode
	}
	return id, nil
}
