package orders

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// ABI layouts of the reactor order structs. Each encoded order is a single
// abi-encoded tuple.
var (
	orderInfoComponents = []abi.ArgumentMarshaling{
		{Name: "reactor", Type: "address"},
		{Name: "swapper", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "additionalValidationContract", Type: "address"},
		{Name: "additionalValidationData", Type: "bytes"},
	}

	dutchOutputComponents = []abi.ArgumentMarshaling{
		{Name: "token", Type: "address"},
		{Name: "startAmount", Type: "uint256"},
		{Name: "endAmount", Type: "uint256"},
		{Name: "recipient", Type: "address"},
	}

	dutchOrderArgs = tupleArgs([]abi.ArgumentMarshaling{
		{Name: "info", Type: "tuple", Components: orderInfoComponents},
		{Name: "decayStartTime", Type: "uint256"},
		{Name: "decayEndTime", Type: "uint256"},
		{Name: "inputToken", Type: "address"},
		{Name: "inputStartAmount", Type: "uint256"},
		{Name: "inputEndAmount", Type: "uint256"},
		{Name: "outputs", Type: "tuple[]", Components: dutchOutputComponents},
	})

	dutchV2OrderArgs = tupleArgs([]abi.ArgumentMarshaling{
		{Name: "info", Type: "tuple", Components: orderInfoComponents},
		{Name: "cosigner", Type: "address"},
		{Name: "baseInput", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "startAmount", Type: "uint256"},
			{Name: "maxAmount", Type: "uint256"},
		}},
		{Name: "baseOutputs", Type: "tuple[]", Components: dutchOutputComponents},
		{Name: "cosignerData", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "decayStartTime", Type: "uint256"},
			{Name: "decayEndTime", Type: "uint256"},
			{Name: "exclusiveFiller", Type: "address"},
			{Name: "exclusivityOverrideBps", Type: "uint256"},
			{Name: "inputOverride", Type: "uint256"},
			{Name: "outputOverrides", Type: "uint256[]"},
		}},
		{Name: "cosignature", Type: "bytes"},
	})

	relayOrderArgs = tupleArgs([]abi.ArgumentMarshaling{
		{Name: "info", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "reactor", Type: "address"},
			{Name: "swapper", Type: "address"},
			{Name: "nonce", Type: "uint256"},
			{Name: "deadline", Type: "uint256"},
		}},
		{Name: "input", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint256"},
			{Name: "recipient", Type: "address"},
		}},
		{Name: "fee", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "startAmount", Type: "uint256"},
			{Name: "endAmount", Type: "uint256"},
			{Name: "startTime", Type: "uint256"},
			{Name: "endTime", Type: "uint256"},
		}},
		{Name: "universalRouterCalldata", Type: "bytes"},
	})
)

func tupleArgs(components []abi.ArgumentMarshaling) abi.Arguments {
	t, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic("orders: build abi tuple: " + err.Error())
	}
	return abi.Arguments{{Name: "order", Type: t}}
}

// Go mirrors of the tuples above. Field names follow abi.ToCamelCase of the
// component names so Pack can map them.

type orderInfoABI struct {
	Reactor                      common.Address
	Swapper                      common.Address
	Nonce                        *big.Int
	Deadline                     *big.Int
	AdditionalValidationContract common.Address
	AdditionalValidationData     []byte
}

type dutchOutputABI struct {
	Token       common.Address
	StartAmount *big.Int
	EndAmount   *big.Int
	Recipient   common.Address
}

type dutchOrderABI struct {
	Info             orderInfoABI
	DecayStartTime   *big.Int
	DecayEndTime     *big.Int
	InputToken       common.Address
	InputStartAmount *big.Int
	InputEndAmount   *big.Int
	Outputs          []dutchOutputABI
}

type v2InputABI struct {
	Token       common.Address
	StartAmount *big.Int
	MaxAmount   *big.Int
}

type cosignerDataABI struct {
	DecayStartTime         *big.Int
	DecayEndTime           *big.Int
	ExclusiveFiller        common.Address
	ExclusivityOverrideBps *big.Int
	InputOverride          *big.Int
	OutputOverrides        []*big.Int
}

type dutchV2OrderABI struct {
	Info         orderInfoABI
	Cosigner     common.Address
	BaseInput    v2InputABI
	BaseOutputs  []dutchOutputABI
	CosignerData cosignerDataABI
	Cosignature  []byte
}

type relayInfoABI struct {
	Reactor  common.Address
	Swapper  common.Address
	Nonce    *big.Int
	Deadline *big.Int
}

type relayInputABI struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
}

type relayFeeABI struct {
	Token       common.Address
	StartAmount *big.Int
	EndAmount   *big.Int
	StartTime   *big.Int
	EndTime     *big.Int
}

type relayOrderABI struct {
	Info                    relayInfoABI
	Input                   relayInputABI
	Fee                     relayFeeABI
	UniversalRouterCalldata []byte
}

var errEmptyPayload = errors.New("empty payload")

// unpackOrder decodes data as the single tuple described by args into dst,
// which must be a pointer to the matching mirror struct. Malformed input
// never panics out of here.
func unpackOrder[T any](args abi.Arguments, data []byte) (out *T, err error) {
	if len(data) == 0 {
		return nil, errEmptyPayload
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("malformed payload: %v", r)
		}
	}()

	values, err := args.Unpack(data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("expected 1 value, decoded %d", len(values))
	}
	converted, ok := abi.ConvertType(values[0], new(T)).(*T)
	if !ok {
		return nil, fmt.Errorf("unexpected decoded shape %T", values[0])
	}
	return converted, nil
}

func toUint64(field string, v *big.Int) (uint64, error) {
	if v == nil || !v.IsUint64() {
		return 0, fmt.Errorf("%s out of range", field)
	}
	return v.Uint64(), nil
}

func (a orderInfoABI) domain() (domain.OrderInfo, error) {
	deadline, err := toUint64("deadline", a.Deadline)
	if err != nil {
		return domain.OrderInfo{}, err
	}
	return domain.OrderInfo{
		Reactor:                      a.Reactor,
		Swapper:                      a.Swapper,
		Nonce:                        a.Nonce,
		Deadline:                     deadline,
		AdditionalValidationContract: a.AdditionalValidationContract,
		AdditionalValidationData:     a.AdditionalValidationData,
	}, nil
}

func infoABI(info domain.OrderInfo) orderInfoABI {
	return orderInfoABI{
		Reactor:                      info.Reactor,
		Swapper:                      info.Swapper,
		Nonce:                        orZero(info.Nonce),
		Deadline:                     new(big.Int).SetUint64(info.Deadline),
		AdditionalValidationContract: info.AdditionalValidationContract,
		AdditionalValidationData:     orEmpty(info.AdditionalValidationData),
	}
}

func outputsFromABI(in []dutchOutputABI) []domain.DutchOutput {
	out := make([]domain.DutchOutput, len(in))
	for i, o := range in {
		out[i] = domain.DutchOutput{
			Token:       o.Token,
			StartAmount: o.StartAmount,
			EndAmount:   o.EndAmount,
			Recipient:   o.Recipient,
		}
	}
	return out
}

func outputsABI(in []domain.DutchOutput) []dutchOutputABI {
	out := make([]dutchOutputABI, len(in))
	for i, o := range in {
		out[i] = dutchOutputABI{
			Token:       o.Token,
			StartAmount: orZero(o.StartAmount),
			EndAmount:   orZero(o.EndAmount),
			Recipient:   o.Recipient,
		}
	}
	return out
}

func (a *dutchOrderABI) params() (domain.DutchParams, error) {
	info, err := a.Info.domain()
	if err != nil {
		return domain.DutchParams{}, err
	}
	start, err := toUint64("decayStartTime", a.DecayStartTime)
	if err != nil {
		return domain.DutchParams{}, err
	}
	end, err := toUint64("decayEndTime", a.DecayEndTime)
	if err != nil {
		return domain.DutchParams{}, err
	}
	if len(a.Outputs) == 0 {
		return domain.DutchParams{}, errors.New("order has no outputs")
	}
	return domain.DutchParams{
		Info:           info,
		DecayStartTime: start,
		DecayEndTime:   end,
		Input: domain.DutchInput{
			Token:       a.InputToken,
			StartAmount: a.InputStartAmount,
			EndAmount:   a.InputEndAmount,
		},
		Outputs: outputsFromABI(a.Outputs),
	}, nil
}

// EncodeDutch abi-encodes Dutch/Limit auction parameters.
func EncodeDutch(p domain.DutchParams) ([]byte, error) {
	return dutchOrderArgs.Pack(dutchOrderABI{
		Info:             infoABI(p.Info),
		DecayStartTime:   new(big.Int).SetUint64(p.DecayStartTime),
		DecayEndTime:     new(big.Int).SetUint64(p.DecayEndTime),
		InputToken:       p.Input.Token,
		InputStartAmount: orZero(p.Input.StartAmount),
		InputEndAmount:   orZero(p.Input.EndAmount),
		Outputs:          outputsABI(p.Outputs),
	})
}

// EncodeDutchV2 abi-encodes a cosigned Dutch V2 order.
func EncodeDutchV2(o *domain.DutchV2Order) ([]byte, error) {
	overrides := make([]*big.Int, len(o.CosignerData.OutputOverrides))
	for i, v := range o.CosignerData.OutputOverrides {
		overrides[i] = orZero(v)
	}
	return dutchV2OrderArgs.Pack(dutchV2OrderABI{
		Info:     infoABI(o.Info),
		Cosigner: o.Cosigner,
		BaseInput: v2InputABI{
			Token:       o.BaseInput.Token,
			StartAmount: orZero(o.BaseInput.StartAmount),
			MaxAmount:   orZero(o.BaseInput.MaxAmount),
		},
		BaseOutputs: outputsABI(o.BaseOutputs),
		CosignerData: cosignerDataABI{
			DecayStartTime:         new(big.Int).SetUint64(o.CosignerData.DecayStartTime),
			DecayEndTime:           new(big.Int).SetUint64(o.CosignerData.DecayEndTime),
			ExclusiveFiller:        o.CosignerData.ExclusiveFiller,
			ExclusivityOverrideBps: orZero(o.CosignerData.ExclusivityOverrideBps),
			InputOverride:          orZero(o.CosignerData.InputOverride),
			OutputOverrides:        overrides,
		},
		Cosignature: orEmpty(o.Cosignature),
	})
}

// EncodeRelay abi-encodes a relay order.
func EncodeRelay(o *domain.RelayOrder) ([]byte, error) {
	return relayOrderArgs.Pack(relayOrderABI{
		Info: relayInfoABI{
			Reactor:  o.Info.Reactor,
			Swapper:  o.Info.Swapper,
			Nonce:    orZero(o.Info.Nonce),
			Deadline: new(big.Int).SetUint64(o.Info.Deadline),
		},
		Input: relayInputABI{
			Token:     o.Input.Token,
			Amount:    orZero(o.Input.Amount),
			Recipient: o.Input.Recipient,
		},
		Fee: relayFeeABI{
			Token:       o.Fee.Token,
			StartAmount: orZero(o.Fee.StartAmount),
			EndAmount:   orZero(o.Fee.EndAmount),
			StartTime:   new(big.Int).SetUint64(o.Fee.StartTime),
			EndTime:     new(big.Int).SetUint64(o.Fee.EndTime),
		},
		UniversalRouterCalldata: orEmpty(o.UniversalRouterCalldata),
	})
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
