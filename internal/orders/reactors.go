package orders

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

// Chain ids with built-in reactor deployments.
const (
	ChainMainnet  int64 = 1
	ChainPolygon  int64 = 137
	ChainArbitrum int64 = 42161
)

// Canonical reactor deployments.
var (
	DutchReactor   = common.HexToAddress("0x6000da47483062A0D734Ba3dc7576Ce6A0B645C4")
	DutchV2Reactor = common.HexToAddress("0x00000011F84B9aa48e5f8aA8B9897600006289Be")
	RelayReactor   = common.HexToAddress("0x0000000000A4e21E2597DCac987455c48b12edBF")

	ArbitrumDutchV2Reactor = common.HexToAddress("0x1bd1aAdc9E230626C44a139d7E70d842749351eb")
)

// Registry maps each chain's reactor contracts to the order type they settle.
// A Registry is never mutated after construction and is safe for concurrent
// reads.
type Registry struct {
	chains map[int64]map[common.Address]domain.OrderType
}

// ReactorEntry registers one reactor deployment.
type ReactorEntry struct {
	ChainID   int64
	OrderType domain.OrderType
	Reactor   common.Address
}

// DefaultReactors lists the canonical deployments.
func DefaultReactors() []ReactorEntry {
	return []ReactorEntry{
		{ChainID: ChainMainnet, OrderType: domain.OrderTypeDutch, Reactor: DutchReactor},
		{ChainID: ChainMainnet, OrderType: domain.OrderTypeDutchV2, Reactor: DutchV2Reactor},
		{ChainID: ChainMainnet, OrderType: domain.OrderTypeRelay, Reactor: RelayReactor},
		{ChainID: ChainPolygon, OrderType: domain.OrderTypeDutch, Reactor: DutchReactor},
		{ChainID: ChainArbitrum, OrderType: domain.OrderTypeDutchV2, Reactor: ArbitrumDutchV2Reactor},
	}
}

// NewRegistry builds a Registry. Later entries for the same chain and
// reactor replace earlier ones.
func NewRegistry(entries ...ReactorEntry) (*Registry, error) {
	r := &Registry{chains: make(map[int64]map[common.Address]domain.OrderType)}
	for _, e := range entries {
		if !e.OrderType.Valid() {
			return nil, fmt.Errorf("orders: reactor %s on chain %d: unknown order type %q", e.Reactor.Hex(), e.ChainID, e.OrderType)
		}
		if e.ChainID <= 0 {
			return nil, fmt.Errorf("orders: reactor %s: chain id must be positive", e.Reactor.Hex())
		}
		if (e.Reactor == common.Address{}) {
			return nil, fmt.Errorf("orders: %s reactor on chain %d: zero address", e.OrderType, e.ChainID)
		}
		byReactor, ok := r.chains[e.ChainID]
		if !ok {
			byReactor = make(map[common.Address]domain.OrderType)
			r.chains[e.ChainID] = byReactor
		}
		byReactor[e.Reactor] = e.OrderType
	}
	return r, nil
}

// DefaultRegistry returns a Registry holding only DefaultReactors.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultReactors()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Supports reports whether any reactor is registered for chainID.
func (r *Registry) Supports(chainID int64) bool {
	_, ok := r.chains[chainID]
	return ok
}

// OrderTypeFor derives the order type settled by reactor on chainID.
func (r *Registry) OrderTypeFor(chainID int64, reactor common.Address) (domain.OrderType, bool) {
	t, ok := r.chains[chainID][reactor]
	return t, ok
}

// ReactorFor returns one reactor registered for orderType on chainID.
func (r *Registry) ReactorFor(chainID int64, orderType domain.OrderType) (common.Address, bool) {
	for addr, t := range r.chains[chainID] {
		if t == orderType {
			return addr, true
		}
	}
	return common.Address{}, false
}
