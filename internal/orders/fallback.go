package orders

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// AllowList is the set of custom reactors accepted for legacy submissions.
// It is built once at startup and only read afterwards.
type AllowList struct {
	reactors map[common.Address]struct{}
}

// NewAllowList parses reactor addresses in any hex case. Blank entries are
// skipped, so an unset setting yields an empty list.
func NewAllowList(addrs []string) (AllowList, error) {
	l := AllowList{reactors: make(map[common.Address]struct{}, len(addrs))}
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !common.IsHexAddress(a) {
			return AllowList{}, fmt.Errorf("orders: invalid fallback reactor address %q", a)
		}
		l.reactors[common.HexToAddress(a)] = struct{}{}
	}
	return l, nil
}

// Empty reports whether no reactor is allow-listed.
func (l AllowList) Empty() bool { return len(l.reactors) == 0 }

// Contains reports whether reactor is allow-listed.
func (l AllowList) Contains(reactor common.Address) bool {
	_, ok := l.reactors[reactor]
	return ok
}

// Len returns the number of allow-listed reactors.
func (l AllowList) Len() int { return len(l.reactors) }

// DecodeLegacyFallback re-decodes an untyped submission against the Dutch
// schema without any chain or reactor checks, then accepts it only if its
// reactor is allow-listed. The result is always a DutchOrder.
//
// A failed re-decode is returned as a DecodeFailure. The allow-list is only
// consulted after the payload decodes. A decay window that ends before it
// starts is rejected as UnexpectedOrderType, as on the typed path.
func DecodeLegacyFallback(sub domain.OrderSubmission, allow AllowList) (domain.CanonicalOrder, error) {
	raw, err := unpackOrder[dutchOrderABI](dutchOrderArgs, sub.EncodedOrder)
	if err != nil {
		return nil, decodeFailure(sub, domain.OrderTypeDutch, err)
	}
	params, err := raw.params()
	if err != nil {
		return nil, decodeFailure(sub, domain.OrderTypeDutch, err)
	}

	if allow.Empty() {
		return nil, &Error{
			Kind:     KindFallbackConfigurationMissing,
			Variant:  domain.OrderTypeDutch,
			Reactor:  params.Info.Reactor,
			ChainID:  sub.ChainID,
			Declared: sub.OrderType,
		}
	}
	if !allow.Contains(params.Info.Reactor) {
		return nil, &Error{
			Kind:     KindFallbackReactorMismatch,
			Variant:  domain.OrderTypeDutch,
			Reactor:  params.Info.Reactor,
			ChainID:  sub.ChainID,
			Declared: sub.OrderType,
		}
	}

	if params.DecayStartTime > params.DecayEndTime {
		return nil, unexpectedType(sub, domain.OrderTypeDutch, "")
	}

	return &domain.DutchOrder{OrderMeta: domain.MetaFrom(sub), DutchParams: params}, nil
}
