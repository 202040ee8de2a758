package main

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/security-alliance/uniswapx-service/internal/domain"
	"github.com/security-alliance/uniswapx-service/internal/orders"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

// sampleParams describes the order to encode.
type sampleParams struct {
	Type    string // Dutch, Limit, Dutch_V2, Relay
	ChainID int64
	Reactor common.Address // zero picks the registered reactor
	Swapper common.Address
	Nonce   *big.Int
	Now     time.Time
}

// resolveReactor picks the registered reactor for the sample's type. Limit
// orders settle through the Dutch reactor.
func resolveReactor(reg *orders.Registry, p sampleParams) (common.Address, error) {
	if (p.Reactor != common.Address{}) {
		return p.Reactor, nil
	}
	t := domain.OrderType(p.Type)
	if t == domain.OrderTypeLimit {
		t = domain.OrderTypeDutch
	}
	addr, ok := reg.ReactorFor(p.ChainID, t)
	if !ok {
		return common.Address{}, fmt.Errorf("no %s reactor registered on chain %d; pass -reactor", t, p.ChainID)
	}
	return addr, nil
}

// buildSample encodes a plausible order of the requested type.
func buildSample(reg *orders.Registry, p sampleParams) ([]byte, common.Address, error) {
	reactor, err := resolveReactor(reg, p)
	if err != nil {
		return nil, common.Address{}, err
	}

	now := uint64(p.Now.Unix())
	info := domain.OrderInfo{
		Reactor:  reactor,
		Swapper:  p.Swapper,
		Nonce:    p.Nonce,
		Deadline: now + 600,
	}
	oneEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	var encoded []byte
	switch domain.OrderType(p.Type) {
	case domain.OrderTypeDutch:
		encoded, err = orders.EncodeDutch(domain.DutchParams{
			Info:           info,
			DecayStartTime: now + 30,
			DecayEndTime:   now + 90,
			Input:          domain.DutchInput{Token: weth, StartAmount: oneEth, EndAmount: oneEth},
			Outputs: []domain.DutchOutput{{
				Token: usdc, StartAmount: big.NewInt(3_000_000_000), EndAmount: big.NewInt(2_950_000_000), Recipient: p.Swapper,
			}},
		})
	case domain.OrderTypeLimit:
		encoded, err = orders.EncodeDutch(domain.DutchParams{
			Info:           info,
			DecayStartTime: now,
			DecayEndTime:   now,
			Input:          domain.DutchInput{Token: weth, StartAmount: oneEth, EndAmount: oneEth},
			Outputs: []domain.DutchOutput{{
				Token: usdc, StartAmount: big.NewInt(3_000_000_000), EndAmount: big.NewInt(3_000_000_000), Recipient: p.Swapper,
			}},
		})
	case domain.OrderTypeDutchV2:
		encoded, err = orders.EncodeDutchV2(&domain.DutchV2Order{
			Info:      info,
			Cosigner:  p.Swapper,
			BaseInput: domain.V2Input{Token: weth, StartAmount: oneEth, MaxAmount: oneEth},
			BaseOutputs: []domain.DutchOutput{{
				Token: usdc, StartAmount: big.NewInt(3_000_000_000), EndAmount: big.NewInt(2_950_000_000), Recipient: p.Swapper,
			}},
			CosignerData: domain.CosignerData{
				DecayStartTime: now + 30,
				DecayEndTime:   now + 90,
				InputOverride:  big.NewInt(0),
			},
			Cosignature: make([]byte, 65),
		})
	case domain.OrderTypeRelay:
		encoded, err = orders.EncodeRelay(&domain.RelayOrder{
			Info:  domain.RelayInfo{Reactor: reactor, Swapper: p.Swapper, Nonce: p.Nonce, Deadline: now + 600},
			Input: domain.RelayInput{Token: usdc, Amount: big.NewInt(1_000_000), Recipient: p.Swapper},
			Fee: domain.RelayFee{
				Token: usdc, StartAmount: big.NewInt(1_000), EndAmount: big.NewInt(2_000),
				StartTime: now, EndTime: now + 120,
			},
			UniversalRouterCalldata: []byte{0x24, 0x85, 0x6b, 0xc3},
		})
	default:
		return nil, common.Address{}, fmt.Errorf("unknown order type %q", p.Type)
	}
	if err != nil {
		return nil, common.Address{}, err
	}
	return encoded, reactor, nil
}
