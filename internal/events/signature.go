package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac-sha256>". The MAC
// covers "<unix seconds>.<body>" so a captured body cannot be replayed
// under a fresh timestamp.
const SignatureHeader = "X-Clearframe-Signature"

var (
	ErrSignatureMalformed = errors.New("events: malformed signature header")
	ErrSignatureMismatch  = errors.New("events: signature mismatch")
	ErrSignatureExpired   = errors.New("events: signature timestamp outside tolerance")
)

func mac(secret string, unix int64, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(strconv.AppendInt(nil, unix, 10))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}

// Sign returns the SignatureHeader value for body sent at ts.
func Sign(secret string, ts time.Time, body []byte) string {
	unix := ts.Unix()
	return "t=" + strconv.FormatInt(unix, 10) + ",v1=" + hex.EncodeToString(mac(secret, unix, body))
}

type signature struct {
	unix int64
	sums [][]byte
}

// parseSignature accepts several v1 entries so receivers keep verifying
// while a secret is rotated.
func parseSignature(header string) (signature, error) {
	var sig signature
	for field := range strings.SplitSeq(header, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil || n <= 0 {
				return sig, ErrSignatureMalformed
			}
			sig.unix = n
		case "v1":
			sum, err := hex.DecodeString(val)
			if err != nil {
				return sig, ErrSignatureMalformed
			}
			sig.sums = append(sig.sums, sum)
		}
	}
	if sig.unix == 0 || len(sig.sums) == 0 {
		return sig, ErrSignatureMalformed
	}
	return sig, nil
}

// Verify checks a SignatureHeader value against body. Timestamps further
// than tolerance from now, in either direction, are rejected.
func Verify(header, secret string, body []byte, tolerance time.Duration, now time.Time) error {
	sig, err := parseSignature(header)
	if err != nil {
		return err
	}
	if skew := now.Sub(time.Unix(sig.unix, 0)).Abs(); skew > tolerance {
		return ErrSignatureExpired
	}
	want := mac(secret, sig.unix, body)
	for _, sum := range sig.sums {
		if hmac.Equal(sum, want) {
			return nil
		}
	}
	return ErrSignatureMismatch
}
