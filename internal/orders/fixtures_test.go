package orders_test

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/security-alliance/uniswapx-service/internal/domain"
	"github.com/security-alliance/uniswapx-service/internal/orders"
)

var (
	swapper       = common.HexToAddress("0x8ba1f109551bD432803012645Ac136ddd64DBA72")
	tokenIn       = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	tokenOut      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	cosigner      = common.HexToAddress("0x4449Cd34d1eb1FEDCF02A1Be3834FfDe8E6A6180")
	customReactor = common.HexToAddress("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")

	testSignature = append(make([]byte, 64), 0x1b)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dutchParams(reactor common.Address, start, end uint64) domain.DutchParams {
	return domain.DutchParams{
		Info: domain.OrderInfo{
			Reactor:                  reactor,
			Swapper:                  swapper,
			Nonce:                    big.NewInt(1993353164),
			Deadline:                 1_700_000_600,
			AdditionalValidationData: []byte{},
		},
		DecayStartTime: start,
		DecayEndTime:   end,
		Input: domain.DutchInput{
			Token:       tokenIn,
			StartAmount: big.NewInt(1_000_000_000_000_000_000),
			EndAmount:   big.NewInt(1_000_000_000_000_000_000),
		},
		Outputs: []domain.DutchOutput{{
			Token:       tokenOut,
			StartAmount: big.NewInt(2_000_000_000),
			EndAmount:   big.NewInt(1_900_000_000),
			Recipient:   swapper,
		}},
	}
}

func limitParams(reactor common.Address, at uint64) domain.DutchParams {
	p := dutchParams(reactor, at, at)
	p.Outputs[0].EndAmount = new(big.Int).Set(p.Outputs[0].StartAmount)
	return p
}

func v2Order(reactor common.Address) *domain.DutchV2Order {
	return &domain.DutchV2Order{
		Info: domain.OrderInfo{
			Reactor:                  reactor,
			Swapper:                  swapper,
			Nonce:                    big.NewInt(7),
			Deadline:                 1_700_000_900,
			AdditionalValidationData: []byte{},
		},
		Cosigner: cosigner,
		BaseInput: domain.V2Input{
			Token:       tokenIn,
			StartAmount: big.NewInt(5_000_000),
			MaxAmount:   big.NewInt(5_000_000),
		},
		BaseOutputs: []domain.DutchOutput{
			{Token: tokenOut, StartAmount: big.NewInt(100), EndAmount: big.NewInt(90), Recipient: swapper},
			{Token: tokenOut, StartAmount: big.NewInt(3), EndAmount: big.NewInt(3), Recipient: cosigner},
		},
		CosignerData: domain.CosignerData{
			DecayStartTime:         1_700_000_100,
			DecayEndTime:           1_700_000_400,
			ExclusiveFiller:        cosigner,
			ExclusivityOverrideBps: big.NewInt(100),
			InputOverride:          big.NewInt(0),
			OutputOverrides:        []*big.Int{big.NewInt(101), big.NewInt(0)},
		},
		Cosignature: append(make([]byte, 64), 0x1c),
	}
}

func relayOrder(reactor common.Address) *domain.RelayOrder {
	return &domain.RelayOrder{
		Info: domain.RelayInfo{
			Reactor:  reactor,
			Swapper:  swapper,
			Nonce:    big.NewInt(99),
			Deadline: 1_700_001_000,
		},
		Input: domain.RelayInput{Token: tokenIn, Amount: big.NewInt(42), Recipient: swapper},
		Fee: domain.RelayFee{
			Token:       tokenOut,
			StartAmount: big.NewInt(10),
			EndAmount:   big.NewInt(20),
			StartTime:   1_700_000_000,
			EndTime:     1_700_000_300,
		},
		UniversalRouterCalldata: []byte{0x24, 0x85, 0x6b, 0xc3},
	}
}

func encodeDutch(t *testing.T, p domain.DutchParams) []byte {
	t.Helper()
	b, err := orders.EncodeDutch(p)
	require.NoError(t, err)
	return b
}

func encodeV2(t *testing.T, o *domain.DutchV2Order) []byte {
	t.Helper()
	b, err := orders.EncodeDutchV2(o)
	require.NoError(t, err)
	return b
}

func encodeRelay(t *testing.T, o *domain.RelayOrder) []byte {
	t.Helper()
	b, err := orders.EncodeRelay(o)
	require.NoError(t, err)
	return b
}

func submission(encoded []byte, chainID int64, orderType domain.OrderType) domain.OrderSubmission {
	return domain.OrderSubmission{
		EncodedOrder: encoded,
		Signature:    testSignature,
		ChainID:      chainID,
		OrderType:    orderType,
		QuoteID:      "quote-1",
		RequestID:    "req-1",
	}
}

func requireBig(t *testing.T, want, got *big.Int, field string) {
	t.Helper()
	require.NotNil(t, got, field)
	require.Zero(t, want.Cmp(got), "%s: want %s, got %s", field, want, got)
}

func requireInfo(t *testing.T, want, got domain.OrderInfo) {
	t.Helper()
	require.Equal(t, want.Reactor, got.Reactor)
	require.Equal(t, want.Swapper, got.Swapper)
	requireBig(t, want.Nonce, got.Nonce, "nonce")
	require.Equal(t, want.Deadline, got.Deadline)
	require.Equal(t, want.AdditionalValidationContract, got.AdditionalValidationContract)
	require.Equal(t, want.AdditionalValidationData, got.AdditionalValidationData)
}

func requireOutputs(t *testing.T, want, got []domain.DutchOutput) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Token, got[i].Token)
		require.Equal(t, want[i].Recipient, got[i].Recipient)
		requireBig(t, want[i].StartAmount, got[i].StartAmount, "output start")
		requireBig(t, want[i].EndAmount, got[i].EndAmount, "output end")
	}
}

func requireDutchParams(t *testing.T, want, got domain.DutchParams) {
	t.Helper()
	requireInfo(t, want.Info, got.Info)
	require.Equal(t, want.DecayStartTime, got.DecayStartTime)
	require.Equal(t, want.DecayEndTime, got.DecayEndTime)
	require.Equal(t, want.Input.Token, got.Input.Token)
	requireBig(t, want.Input.StartAmount, got.Input.StartAmount, "input start")
	requireBig(t, want.Input.EndAmount, got.Input.EndAmount, "input end")
	requireOutputs(t, want.Outputs, got.Outputs)
}

func requireKind(t *testing.T, err error, kind orders.Kind) *orders.Error {
	t.Helper()
	require.Error(t, err)
	var e *orders.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	return e
}
