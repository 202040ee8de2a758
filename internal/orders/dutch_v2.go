package orders

import (
	"errors"
	"fmt"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// DecodeDutchV2 decodes a cosigned Dutch V2 order. The order's reactor must
// be the chain's registered V2 reactor.
func DecodeDutchV2(sub domain.OrderSubmission, registry *Registry) (domain.CanonicalOrder, error) {
	fail := func(err error) (domain.CanonicalOrder, error) {
		return nil, decodeFailure(sub, domain.OrderTypeDutchV2, err)
	}

	if !registry.Supports(sub.ChainID) {
		return fail(fmt.Errorf("unsupported chain %d", sub.ChainID))
	}
	raw, err := unpackOrder[dutchV2OrderABI](dutchV2OrderArgs, sub.EncodedOrder)
	if err != nil {
		return fail(err)
	}

	info, err := raw.Info.domain()
	if err != nil {
		return fail(err)
	}
	if t, ok := registry.OrderTypeFor(sub.ChainID, info.Reactor); !ok || t != domain.OrderTypeDutchV2 {
		return fail(fmt.Errorf("reactor %s is not a dutch v2 reactor on chain %d", info.Reactor.Hex(), sub.ChainID))
	}
	if len(raw.BaseOutputs) == 0 {
		return fail(errors.New("order has no outputs"))
	}

	cd := raw.CosignerData
	start, err := toUint64("decayStartTime", cd.DecayStartTime)
	if err != nil {
		return fail(err)
	}
	end, err := toUint64("decayEndTime", cd.DecayEndTime)
	if err != nil {
		return fail(err)
	}
	if n := len(cd.OutputOverrides); n != 0 && n != len(raw.BaseOutputs) {
		return fail(fmt.Errorf("%d output overrides for %d outputs", n, len(raw.BaseOutputs)))
	}

	return &domain.DutchV2Order{
		OrderMeta: domain.MetaFrom(sub),
		Info:      info,
		Cosigner:  raw.Cosigner,
		BaseInput: domain.V2Input{
			Token:       raw.BaseInput.Token,
			StartAmount: raw.BaseInput.StartAmount,
			MaxAmount:   raw.BaseInput.MaxAmount,
		},
		BaseOutputs: outputsFromABI(raw.BaseOutputs),
		CosignerData: domain.CosignerData{
			DecayStartTime:         start,
			DecayEndTime:           end,
			ExclusiveFiller:        cd.ExclusiveFiller,
			ExclusivityOverrideBps: cd.ExclusivityOverrideBps,
			InputOverride:          cd.InputOverride,
			OutputOverrides:        cd.OutputOverrides,
		},
		Cosignature: raw.Cosignature,
	}, nil
}
