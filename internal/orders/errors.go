package orders

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// Kind classifies why a submission could not be turned into an order.
type Kind string

const (
	// KindUnexpectedOrderType: the payload decoded, but the variant it
	// decoded to is not the one that was declared or expected.
	KindUnexpectedOrderType Kind = "UnexpectedOrderType"
	// KindDecodeFailure: the bytes do not decode against the schema.
	KindDecodeFailure Kind = "DecodeFailure"
	// KindFallbackConfigurationMissing: the legacy fallback ran with no
	// reactor allow-list configured.
	KindFallbackConfigurationMissing Kind = "FallbackConfigurationMissing"
	// KindFallbackReactorMismatch: the legacy fallback decoded a reactor
	// that is not allow-listed.
	KindFallbackReactorMismatch Kind = "FallbackReactorMismatch"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrUnexpectedOrderType          = &Error{Kind: KindUnexpectedOrderType}
	ErrDecodeFailure                = &Error{Kind: KindDecodeFailure}
	ErrFallbackConfigurationMissing = &Error{Kind: KindFallbackConfigurationMissing}
	ErrFallbackReactorMismatch      = &Error{Kind: KindFallbackReactorMismatch}
)

// Error is the single failure type produced while decoding a submission.
type Error struct {
	Kind Kind
	// Variant is the schema that was being decoded, or the type that was
	// expected for KindUnexpectedOrderType.
	Variant domain.OrderType
	// Actual is the type the payload decoded to. Empty when the payload does
	// not map to any known type.
	Actual  domain.OrderType
	Reactor common.Address

	ChainID  int64
	Declared domain.OrderType
	Cause    error
}

func (e *Error) Error() string {
	return "orders: " + e.Message()
}

// Message describes the failure without payload or signature bytes.
func (e *Error) Message() string {
	switch e.Kind {
	case KindUnexpectedOrderType:
		actual := string(e.Actual)
		if actual == "" {
			actual = "unknown"
		}
		if e.Variant == "" {
			return fmt.Sprintf("unexpected order type %s", actual)
		}
		return fmt.Sprintf("unexpected order type %s, expected %s", actual, e.Variant)
	case KindDecodeFailure:
		var b strings.Builder
		b.WriteString("decode ")
		if e.Variant != "" {
			b.WriteString(string(e.Variant))
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "order for chain %d", e.ChainID)
		if e.Cause != nil {
			b.WriteString(": ")
			b.WriteString(e.Cause.Error())
		}
		return b.String()
	case KindFallbackConfigurationMissing:
		return "legacy reactor fallback has no configured reactor allow-list"
	case KindFallbackReactorMismatch:
		return fmt.Sprintf("reactor %s is not an allow-listed legacy reactor", e.Reactor.Hex())
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// PublicError is the view of an Error that may be returned to callers.
type PublicError struct {
	Kind      Kind             `json:"kind"`
	Message   string           `json:"message"`
	ChainID   int64            `json:"chainId"`
	OrderType domain.OrderType `json:"orderType,omitempty"`
}

// Public strips the error down to what an untrusted caller may see.
func (e *Error) Public() PublicError {
	return PublicError{
		Kind:      e.Kind,
		Message:   e.Message(),
		ChainID:   e.ChainID,
		OrderType: e.Declared,
	}
}

func decodeFailure(sub domain.OrderSubmission, variant domain.OrderType, cause error) *Error {
	return &Error{
		Kind:     KindDecodeFailure,
		Variant:  variant,
		ChainID:  sub.ChainID,
		Declared: sub.OrderType,
		Cause:    cause,
	}
}

func unexpectedType(sub domain.OrderSubmission, expected, actual domain.OrderType) *Error {
	return &Error{
		Kind:     KindUnexpectedOrderType,
		Variant:  expected,
		Actual:   actual,
		ChainID:  sub.ChainID,
		Declared: sub.OrderType,
	}
}
