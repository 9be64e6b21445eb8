package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance is the replay window for webhook signatures. A payload
// whose timestamp is further than this from the current time is rejected even
// when the signature itself is valid.
const SignatureTolerance = 5 * time.Minute

// SignPayload produces a signature header for the given payload at the given
// time, in the processor's `t=<unix>,v1=<hex>` format. The signed string is
// "{t}.{payload}" with HMAC-SHA256 over the raw bytes.
func SignPayload(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature validates that the raw payload was signed by the shared
// secret and that the signature timestamp is within tolerance of now. The
// payload must be the unparsed request body; any reserialization breaks the
// signature. Every failure path returns ErrInvalidSignature: callers respond
// 400 and do not process.
func VerifySignature(secret string, payload []byte, header string, tolerance time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: signing secret is not configured", ErrInvalidSignature)
	}
	if header == "" {
		return fmt.Errorf("%w: signature header is missing", ErrInvalidSignature)
	}

	var ts, sig string
	for part := range strings.SplitSeq(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: header lacks t or v1 component", ErrInvalidSignature)
	}

	t, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
	}

	// Replay window check applies in both directions: stale deliveries and
	// far-future timestamps are equally rejected.
	if tolerance > 0 {
		age := time.Since(time.Unix(t, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside replay window", ErrInvalidSignature)
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", t, payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}

	return nil
}
