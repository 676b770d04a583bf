package credits

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPackage   = errors.New("unknown credit package")
	ErrMissingUserID    = errors.New("user id is required")
	ErrCheckoutFailed   = errors.New("failed to create checkout session")
	ErrWebhookRejected  = errors.New("webhook permanently rejected")
	ErrWebhookTransient = errors.New("webhook processing failed, redelivery expected")
)

// ErrorKind is the machine-readable classification callers branch on.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindAuth              ErrorKind = "auth"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindSignature         ErrorKind = "signature"
	KindTransient         ErrorKind = "transient"
	KindNotFound          ErrorKind = "not_found"
)

// Error carries a kind and a context map alongside the wrapped cause, so
// callers branch on Kind rather than matching message text.
type Error struct {
	Kind    ErrorKind
	Code    string
	Context map[string]any
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.err }

// E wraps err with a kind, code, and optional key/value context pairs.
func E(kind ErrorKind, code string, err error, kv ...any) *Error {
	var ctx map[string]any
	if len(kv) > 1 {
		ctx = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			ctx[key] = kv[i+1]
		}
	}
	return &Error{Kind: kind, Code: code, Context: ctx, err: err}
}

// KindOf extracts the ErrorKind from err, or KindTransient when err
// carries no classification.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}
