package orders

import (
	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// DecodeRelay decodes a relay order, then re-derives the order type from the
// reactor it names. A payload that decodes cleanly but targets anything other
// than a registered relay reactor is UnexpectedOrderType.
func DecodeRelay(sub domain.OrderSubmission, registry *Registry) (domain.CanonicalOrder, error) {
	raw, err := unpackOrder[relayOrderABI](relayOrderArgs, sub.EncodedOrder)
	if err != nil {
		return nil, decodeFailure(sub, domain.OrderTypeRelay, err)
	}

	deadline, err := toUint64("deadline", raw.Info.Deadline)
	if err != nil {
		return nil, decodeFailure(sub, domain.OrderTypeRelay, err)
	}
	startTime, err := toUint64("fee.startTime", raw.Fee.StartTime)
	if err != nil {
		return nil, decodeFailure(sub, domain.OrderTypeRelay, err)
	}
	endTime, err := toUint64("fee.endTime", raw.Fee.EndTime)
	if err != nil {
		return nil, decodeFailure(sub, domain.OrderTypeRelay, err)
	}

	derived, _ := registry.OrderTypeFor(sub.ChainID, raw.Info.Reactor)
	if derived != domain.OrderTypeRelay {
		e := unexpectedType(sub, domain.OrderTypeRelay, derived)
		e.Reactor = raw.Info.Reactor
		return nil, e
	}

	return &domain.RelayOrder{
		OrderMeta: domain.MetaFrom(sub),
		Info: domain.RelayInfo{
			Reactor:  raw.Info.Reactor,
			Swapper:  raw.Info.Swapper,
			Nonce:    raw.Info.Nonce,
			Deadline: deadline,
		},
		Input: domain.RelayInput{
			Token:     raw.Input.Token,
			Amount:    raw.Input.Amount,
			Recipient: raw.Input.Recipient,
		},
		Fee: domain.RelayFee{
			Token:       raw.Fee.Token,
			StartAmount: raw.Fee.StartAmount,
			EndAmount:   raw.Fee.EndAmount,
			StartTime:   startTime,
			EndTime:     endTime,
		},
		UniversalRouterCalldata: raw.UniversalRouterCalldata,
	}, nil
}
