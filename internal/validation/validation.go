package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrMissingField  = errors.New("missing_field")
	ErrInvalidFormat = errors.New("invalid_format")
	ErrInvalidOrigin = errors.New("invalid_origin")
)

const (
	FieldOwnerID           = "ownerId"
	FieldProviderAccountID = "providerAccountId"
)

var (
	uuidV4Pattern            = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	providerAccountIDPattern = regexp.MustCompile(`^acct_[A-Za-z0-9]{16}$`)
)

// FieldError names the request field that failed. The wrapped error is one of
// ErrMissingField or ErrInvalidFormat and never carries the rejected value.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// OwnerID validates a decoded JSON value as a UUID v4 owner identifier.
func OwnerID(value any) (string, error) {
	return matchField(FieldOwnerID, value, uuidV4Pattern)
}

// ProviderAccountID validates a decoded JSON value as a connected account id.
func ProviderAccountID(value any) (string, error) {
	return matchField(FieldProviderAccountID, value, providerAccountIDPattern)
}

// IsProviderAccountID reports whether id has the connected account shape.
func IsProviderAccountID(id string) bool {
	return providerAccountIDPattern.MatchString(id)
}

func matchField(field string, value any, pattern *regexp.Regexp) (string, error) {
	if value == nil {
		return "", &FieldError{Field: field, Err: ErrMissingField}
	}
	raw, ok := value.(string)
	if !ok {
		return "", &FieldError{Field: field, Err: ErrInvalidFormat}
	}
	raw = strings.TrimSpace(raw)
	if err := validation.Validate(raw, validation.Required); err != nil {
		return "", &FieldError{Field: field, Err: ErrMissingField}
	}
	if err := validation.Validate(raw, validation.Match(pattern)); err != nil {
		return "", &FieldError{Field: field, Err: ErrInvalidFormat}
	}
	return raw, nil
}

// Origin checks a request Origin header against the allow-list and returns the
// normalized scheme://host form used to build return URLs.
func Origin(origin string, allowed []string) (string, error) {
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return "", ErrInvalidOrigin
	}
	err := validation.Validate(normalized, validation.By(func(value interface{}) error {
		for _, candidate := range allowed {
			if c, ok := normalizeOrigin(candidate); ok && c == value.(string) {
				return nil
			}
		}
		return ErrInvalidOrigin
	}))
	if err != nil {
		return "", ErrInvalidOrigin
	}
	return normalized, nil
}

func normalizeOrigin(raw string) (string, bool) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if parsed.Host == "" || parsed.User != nil {
		return "", false
	}
	if parsed.Path != "" || parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", false
	}
	return scheme + "://" + strings.ToLower(parsed.Host), true
}

var sanitizer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Sanitize escapes markup characters in free text before it is stored.
func Sanitize(s string) string {
	return sanitizer.Replace(strings.TrimSpace(s))
}
