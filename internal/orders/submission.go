package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// SubmissionRequest is the wire form of an order submission.
type SubmissionRequest struct {
	EncodedOrder string `json:"encodedOrder"`
	Signature    string `json:"signature"`
	ChainID      int64  `json:"chainId"`
	OrderType    string `json:"orderType,omitempty"`
	QuoteID      string `json:"quoteId,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// ParseSubmission converts a wire submission into a domain.OrderSubmission.
// Every failure is a DecodeFailure *Error.
func ParseSubmission(req SubmissionRequest) (domain.OrderSubmission, error) {
	sub := domain.OrderSubmission{
		ChainID:   req.ChainID,
		OrderType: domain.OrderType(req.OrderType),
		QuoteID:   req.QuoteID,
		RequestID: req.RequestID,
	}
	if sub.Declared() && !sub.OrderType.Valid() {
		return sub, decodeFailure(sub, "", fmt.Errorf("unknown order type %q", req.OrderType))
	}
	if sub.ChainID <= 0 {
		return sub, decodeFailure(sub, sub.OrderType, errors.New("chainId must be positive"))
	}

	var err error
	if sub.EncodedOrder, err = decodeHex(req.EncodedOrder); err != nil {
		return sub, decodeFailure(sub, sub.OrderType, fmt.Errorf("encodedOrder: %w", err))
	}
	if len(sub.EncodedOrder) == 0 {
		return sub, decodeFailure(sub, sub.OrderType, fmt.Errorf("encodedOrder: %w", errEmptyPayload))
	}
	if sub.Signature, err = decodeHex(req.Signature); err != nil {
		return sub, decodeFailure(sub, sub.OrderType, fmt.Errorf("signature: %w", err))
	}
	// 65-byte r||s||v or 64-byte compact (EIP-2098) signatures.
	if n := len(sub.Signature); n != 64 && n != 65 {
		return sub, decodeFailure(sub, sub.OrderType, fmt.Errorf("signature: expected 64 or 65 bytes, got %d", n))
	}
	return sub, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
