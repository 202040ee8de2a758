package orders

import (
	"fmt"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// DecodeDutch decodes a submission against the shared Dutch/Limit schema and
// infers which of the two it is. The chain must be supported and the order's
// reactor must be registered there as a Dutch or Limit reactor.
//
// A payload whose decay window collapses to a point, or whose amounts do not
// move over the window, is a Limit order. A window that runs backwards fits
// neither shape and is rejected as UnexpectedOrderType.
func DecodeDutch(sub domain.OrderSubmission, registry *Registry) (domain.CanonicalOrder, error) {
	if !registry.Supports(sub.ChainID) {
		return nil, decodeFailure(sub, domain.OrderTypeDutch, fmt.Errorf("unsupported chain %d", sub.ChainID))
	}

	raw, err := unpackOrder[dutchOrderABI](dutchOrderArgs, sub.EncodedOrder)
	if err != nil {
		return nil, decodeFailure(sub, domain.OrderTypeDutch, err)
	}
	params, err := raw.params()
	if err != nil {
		return nil, decodeFailure(sub, domain.OrderTypeDutch, err)
	}

	reactorType, ok := registry.OrderTypeFor(sub.ChainID, params.Info.Reactor)
	if !ok || (reactorType != domain.OrderTypeDutch && reactorType != domain.OrderTypeLimit) {
		return nil, decodeFailure(sub, domain.OrderTypeDutch,
			fmt.Errorf("reactor %s is not a dutch reactor on chain %d", params.Info.Reactor.Hex(), sub.ChainID))
	}

	return classifyDutch(sub, params)
}

func classifyDutch(sub domain.OrderSubmission, params domain.DutchParams) (domain.CanonicalOrder, error) {
	meta := domain.MetaFrom(sub)
	switch {
	case params.DecayStartTime > params.DecayEndTime:
		return nil, unexpectedType(sub, sub.OrderType, "")
	case params.DecayStartTime == params.DecayEndTime, params.ZeroSlope():
		return &domain.LimitOrder{OrderMeta: meta, DutchParams: params}, nil
	default:
		return &domain.DutchOrder{OrderMeta: meta, DutchParams: params}, nil
	}
}
