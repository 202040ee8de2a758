package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderType names the auction format a submission declares or decodes to.
type OrderType string

const (
	OrderTypeDutch   OrderType = "Dutch"
	OrderTypeDutchV2 OrderType = "Dutch_V2"
	OrderTypeLimit   OrderType = "Limit"
	OrderTypeRelay   OrderType = "Relay"
)

// Valid reports whether t is one of the known order types.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeDutch, OrderTypeDutchV2, OrderTypeLimit, OrderTypeRelay:
		return true
	}
	return false
}

// OrderSubmission is a signed, encoded order as received from a client.
// OrderType is empty for legacy submissions that do not declare a type.
type OrderSubmission struct {
	EncodedOrder []byte
	Signature    []byte
	ChainID      int64
	OrderType    OrderType
	QuoteID      string
	RequestID    string
}

// Declared reports whether the submission carries an explicit order type.
func (s OrderSubmission) Declared() bool {
	return s.OrderType != ""
}

// OrderMeta is carried by every decoded order: the submission fields that
// are not part of the encoded payload.
type OrderMeta struct {
	EncodedOrder []byte `json:"-"`
	Signature    []byte `json:"signature"`
	ChainID      int64  `json:"chainId"`
	QuoteID      string `json:"quoteId,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

// MetaFrom copies the non-payload fields of a submission.
func MetaFrom(s OrderSubmission) OrderMeta {
	return OrderMeta{
		EncodedOrder: s.EncodedOrder,
		Signature:    s.Signature,
		ChainID:      s.ChainID,
		QuoteID:      s.QuoteID,
		RequestID:    s.RequestID,
	}
}

// CanonicalOrder is the decoded form of a submission. The set of
// implementations is closed: DutchOrder, LimitOrder, DutchV2Order and
// RelayOrder. Each implementation reports a fixed type, so the tag can never
// disagree with the shape that carries it.
type CanonicalOrder interface {
	Type() OrderType
	Meta() OrderMeta
	Reactor() common.Address
	Swapper() common.Address
	Nonce() *big.Int
	Deadline() uint64

	canonical()
}

// OrderInfo is the header shared by Dutch, Limit and Dutch V2 orders.
type OrderInfo struct {
	Reactor                      common.Address `json:"reactor"`
	Swapper                      common.Address `json:"swapper"`
	Nonce                        *big.Int       `json:"nonce"`
	Deadline                     uint64         `json:"deadline"`
	AdditionalValidationContract common.Address `json:"additionalValidationContract"`
	AdditionalValidationData     []byte         `json:"additionalValidationData"`
}

// DutchInput is the decaying input leg of a Dutch or Limit order.
type DutchInput struct {
	Token       common.Address `json:"token"`
	StartAmount *big.Int       `json:"startAmount"`
	EndAmount   *big.Int       `json:"endAmount"`
}

// DutchOutput is one decaying output leg.
type DutchOutput struct {
	Token       common.Address `json:"token"`
	StartAmount *big.Int       `json:"startAmount"`
	EndAmount   *big.Int       `json:"endAmount"`
	Recipient   common.Address `json:"recipient"`
}

// DutchParams are the auction parameters shared by Dutch and Limit orders.
type DutchParams struct {
	Info           OrderInfo     `json:"info"`
	DecayStartTime uint64        `json:"decayStartTime"`
	DecayEndTime   uint64        `json:"decayEndTime"`
	Input          DutchInput    `json:"input"`
	Outputs        []DutchOutput `json:"outputs"`
}

// ZeroSlope reports whether no amount changes over the decay window.
func (p DutchParams) ZeroSlope() bool {
	if p.Input.StartAmount.Cmp(p.Input.EndAmount) != 0 {
		return false
	}
	for _, out := range p.Outputs {
		if out.StartAmount.Cmp(out.EndAmount) != 0 {
			return false
		}
	}
	return true
}

// DutchOrder is a V1 Dutch auction order.
type DutchOrder struct {
	OrderMeta
	DutchParams
}

func (o *DutchOrder) Type() OrderType         { return OrderTypeDutch }
func (o *DutchOrder) Meta() OrderMeta         { return o.OrderMeta }
func (o *DutchOrder) Reactor() common.Address { return o.Info.Reactor }
func (o *DutchOrder) Swapper() common.Address { return o.Info.Swapper }
func (o *DutchOrder) Nonce() *big.Int         { return o.Info.Nonce }
func (o *DutchOrder) Deadline() uint64        { return o.Info.Deadline }
func (o *DutchOrder) canonical()              {}

// LimitOrder is a Dutch order without price decay.
type LimitOrder struct {
	OrderMeta
	DutchParams
}

func (o *LimitOrder) Type() OrderType         { return OrderTypeLimit }
func (o *LimitOrder) Meta() OrderMeta         { return o.OrderMeta }
func (o *LimitOrder) Reactor() common.Address { return o.Info.Reactor }
func (o *LimitOrder) Swapper() common.Address { return o.Info.Swapper }
func (o *LimitOrder) Nonce() *big.Int         { return o.Info.Nonce }
func (o *LimitOrder) Deadline() uint64        { return o.Info.Deadline }
func (o *LimitOrder) canonical()              {}

// V2Input is the base input of a Dutch V2 order. MaxAmount bounds what the
// cosigner may override the input to.
type V2Input struct {
	Token       common.Address `json:"token"`
	StartAmount *big.Int       `json:"startAmount"`
	MaxAmount   *big.Int       `json:"maxAmount"`
}

// CosignerData holds the cosigner-provided overrides layered on a V2 order.
type CosignerData struct {
	DecayStartTime         uint64         `json:"decayStartTime"`
	DecayEndTime           uint64         `json:"decayEndTime"`
	ExclusiveFiller        common.Address `json:"exclusiveFiller"`
	ExclusivityOverrideBps *big.Int       `json:"exclusivityOverrideBps"`
	InputOverride          *big.Int       `json:"inputOverride"`
	OutputOverrides        []*big.Int     `json:"outputOverrides"`
}

// DutchV2Order is a cosigned Dutch auction order.
type DutchV2Order struct {
	OrderMeta
	Info         OrderInfo      `json:"info"`
	Cosigner     common.Address `json:"cosigner"`
	BaseInput    V2Input        `json:"baseInput"`
	BaseOutputs  []DutchOutput  `json:"baseOutputs"`
	CosignerData CosignerData   `json:"cosignerData"`
	Cosignature  []byte         `json:"cosignature"`
}

func (o *DutchV2Order) Type() OrderType         { return OrderTypeDutchV2 }
func (o *DutchV2Order) Meta() OrderMeta         { return o.OrderMeta }
func (o *DutchV2Order) Reactor() common.Address { return o.Info.Reactor }
func (o *DutchV2Order) Swapper() common.Address { return o.Info.Swapper }
func (o *DutchV2Order) Nonce() *big.Int         { return o.Info.Nonce }
func (o *DutchV2Order) Deadline() uint64        { return o.Info.Deadline }
func (o *DutchV2Order) canonical()              {}

// RelayInfo is the header of a relay order.
type RelayInfo struct {
	Reactor  common.Address `json:"reactor"`
	Swapper  common.Address `json:"swapper"`
	Nonce    *big.Int       `json:"nonce"`
	Deadline uint64         `json:"deadline"`
}

// RelayInput is the token the swapper hands to the relay.
type RelayInput struct {
	Token     common.Address `json:"token"`
	Amount    *big.Int       `json:"amount"`
	Recipient common.Address `json:"recipient"`
}

// RelayFee is the decaying fee paid to the relayer.
type RelayFee struct {
	Token       common.Address `json:"token"`
	StartAmount *big.Int       `json:"startAmount"`
	EndAmount   *big.Int       `json:"endAmount"`
	StartTime   uint64         `json:"startTime"`
	EndTime     uint64         `json:"endTime"`
}

// RelayOrder is settled through a relayer calling the universal router.
type RelayOrder struct {
	OrderMeta
	Info                    RelayInfo  `json:"info"`
	Input                   RelayInput `json:"input"`
	Fee                     RelayFee   `json:"fee"`
	UniversalRouterCalldata []byte     `json:"universalRouterCalldata"`
}

func (o *RelayOrder) Type() OrderType         { return OrderTypeRelay }
func (o *RelayOrder) Meta() OrderMeta         { return o.OrderMeta }
func (o *RelayOrder) Reactor() common.Address { return o.Info.Reactor }
func (o *RelayOrder) Swapper() common.Address { return o.Info.Swapper }
func (o *RelayOrder) Nonce() *big.Int         { return o.Info.Nonce }
func (o *RelayOrder) Deadline() uint64        { return o.Info.Deadline }
func (o *RelayOrder) canonical()              {}

// UnmarshalCanonical restores a canonical order from its JSON form. The
// encoded payload is not part of the JSON and is supplied separately.
func UnmarshalCanonical(t OrderType, data, encoded []byte) (CanonicalOrder, error) {
	var (
		order CanonicalOrder
		meta  *OrderMeta
	)
	switch t {
	case OrderTypeDutch:
		o := &DutchOrder{}
		order, meta = o, &o.OrderMeta
	case OrderTypeLimit:
		o := &LimitOrder{}
		order, meta = o, &o.OrderMeta
	case OrderTypeDutchV2:
		o := &DutchV2Order{}
		order, meta = o, &o.OrderMeta
	case OrderTypeRelay:
		o := &RelayOrder{}
		order, meta = o, &o.OrderMeta
	default:
		return nil, fmt.Errorf("domain: unknown order type %q", t)
	}
	if err := json.Unmarshal(data, order); err != nil {
		return nil, fmt.Errorf("domain: unmarshal %s order: %w", t, err)
	}
	meta.EncodedOrder = encoded
	return order, nil
}

// OrderStatus tracks a stored order's lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// StoredOrder is the persisted row for an accepted order.
type StoredOrder struct {
	Hash         common.Hash
	Type         OrderType
	ChainID      int64
	Reactor      common.Address
	Swapper      common.Address
	Nonce        *big.Int
	Deadline     uint64
	EncodedOrder []byte
	Signature    []byte
	QuoteID      string
	RequestID    string
	Decoded      CanonicalOrder
	Status       OrderStatus
	CreatedAt    time.Time
}

// NewStoredOrder builds the persisted row for a decoded order.
func NewStoredOrder(hash common.Hash, o CanonicalOrder, now time.Time) StoredOrder {
	meta := o.Meta()
	return StoredOrder{
		Hash:         hash,
		Type:         o.Type(),
		ChainID:      meta.ChainID,
		Reactor:      o.Reactor(),
		Swapper:      o.Swapper(),
		Nonce:        o.Nonce(),
		Deadline:     o.Deadline(),
		EncodedOrder: meta.EncodedOrder,
		Signature:    meta.Signature,
		QuoteID:      meta.QuoteID,
		RequestID:    meta.RequestID,
		Decoded:      o,
		Status:       OrderStatusOpen,
		CreatedAt:    now,
	}
}

// OrderFilter narrows order listings. Zero values are ignored.
type OrderFilter struct {
	Swapper   *common.Address
	OrderType OrderType
	ChainID   int64
	Status    OrderStatus
}
