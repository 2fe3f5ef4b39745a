package sgfa

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeFormat is the timestamp layout used everywhere: UTC, second
// resolution, fixed width. Lexicographic order on formatted timestamps
// equals chronological order.
const TimeFormat = "2006-01-02 15:04:05"

// Field limits.
const (
	MaxIDText = 128
	MaxTitle  = 128
	MaxBody   = 8192
	MaxTag    = 128
	MaxName   = 255
	MaxUser   = 64
)

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

// CheckIDText validates a jacket's human-readable identifier.
func CheckIDText(s string) error {
	if len(s) < 1 || len(s) > MaxIDText {
		return errors.Wrap(ErrLimits, "id text length")
	}
	if hasControl(s) {
		return errors.Wrap(ErrLimits, "id text contains control characters")
	}
	return nil
}

// CheckTitle validates an entry title.
func CheckTitle(s string) error {
	if len(s) < 1 || len(s) > MaxTitle {
		return errors.Wrap(ErrLimits, "title length")
	}
	if hasControl(s) {
		return errors.Wrap(ErrLimits, "title contains control characters")
	}
	return nil
}

// CheckBody validates an entry body: printable bytes plus whitespace.
func CheckBody(b []byte) error {
	if len(b) < 1 || len(b) > MaxBody {
		return errors.Wrap(ErrLimits, "body length")
	}
	for _, c := range b {
		if c == '\n' || c == '\t' || c == '\r' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			return errors.Wrap(ErrLimits, "body contains control characters")
		}
	}
	return nil
}

// CheckUser validates the user string recorded in a history record.
func CheckUser(s string) error {
	if len(s) < 1 || len(s) > MaxUser {
		return errors.Wrap(ErrLimits, "user length")
	}
	if hasControl(s) {
		return errors.Wrap(ErrLimits, "user contains control characters")
	}
	return nil
}

// CheckName validates an attachment name.
func CheckName(s string) error {
	if len(s) < 1 || len(s) > MaxName {
		return errors.Wrap(ErrLimits, "name length")
	}
	if hasControl(s) {
		return errors.Wrap(ErrLimits, "name contains control characters")
	}
	if strings.ContainsAny(s, `/\*?`) {
		return errors.Wrap(ErrLimits, "name contains reserved characters")
	}
	return nil
}

// NormalizeTag validates a tag name and returns its normal form.
// A tag containing a colon is normalized to "prefix: suffix" -
// a single space after the first colon, surrounding whitespace stripped.
// Tags beginning with an underscore are reserved.
func NormalizeTag(s string) (string, error) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		prefix := strings.TrimSpace(s[:i])
		suffix := strings.TrimSpace(s[i+1:])
		if prefix == "" || suffix == "" {
			return "", errors.Wrap(ErrLimits, "tag has empty prefix or suffix")
		}
		s = prefix + ": " + suffix
	}
	if len(s) < 1 || len(s) > MaxTag {
		return "", errors.Wrap(ErrLimits, "tag length")
	}
	if hasControl(s) {
		return "", errors.Wrap(ErrLimits, "tag contains control characters")
	}
	if strings.ContainsAny(s, `/\*?`) {
		return "", errors.Wrap(ErrLimits, "tag contains reserved characters")
	}
	if s[0] == '_' {
		return "", errors.Wrap(ErrLimits, "tag begins with underscore")
	}
	return s, nil
}

// CheckTime validates a formatted timestamp.
func CheckTime(s string) error {
	t, err := time.Parse(TimeFormat, s)
	if err != nil || t.UTC().Format(TimeFormat) != s {
		return errors.Wrap(ErrLimits, "malformed time")
	}
	return nil
}

// parseRef parses a ref from its canonical form: exactly 64 lower-case
// hex digits.
func parseRef(s string) (Ref, error) {
	r, err := RefFromHex(s)
	if err != nil || r.String() != s {
		return Zero, errors.Wrap(ErrCorrupt, "malformed hash")
	}
	return r, nil
}

// parseNum parses a nonnegative decimal with no leading zeros.
// Decoders use it so that every accepted number re-encodes to the same
// bytes.
func parseNum(s string) (int64, error) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, errors.Wrap(ErrCorrupt, "malformed number")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.Wrap(ErrCorrupt, "malformed number")
	}
	return n, nil
}
