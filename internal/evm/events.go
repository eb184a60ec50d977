package evm

import (
	"errors"
	"fmt"
	"math/big"

	"dexwatch/internal/domain"
)

// Event topic hashes for the subscribed log set. Precomputed keccak-256
// of the canonical event signatures.
const (
	// PairCreated(address indexed token0, address indexed token1, address pair, uint256)
	TopicPairCreatedV2 = "0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9"
	// PoolCreated(address indexed token0, address indexed token1, uint24 indexed fee, int24 tickSpacing, address pool)
	TopicPoolCreatedV3 = "0x783cca1c0412dd0d695e784568c96da2e9c22ff989357a2e8b1d9b2b4e6b7118"
	// Swap(address indexed sender, uint256 amount0In, uint256 amount1In, uint256 amount0Out, uint256 amount1Out, address indexed to)
	TopicSwapV2 = "0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822"
	// Mint(address indexed sender, uint256 amount0, uint256 amount1)
	TopicMintV2 = "0x4c209b5fc8ad50758f13e2e1088ba56a560dff690a1c6fef26394f4c03821c4f"
	// Swap(address indexed sender, address indexed recipient, int256 amount0, int256 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick)
	TopicSwapV3 = "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"
)

// ErrTopicMismatch is returned when a log does not carry the expected shape.
var ErrTopicMismatch = errors.New("log topic mismatch")

// topicAddress extracts an address from an indexed topic word.
func topicAddress(topic string) (string, error) {
	raw, err := decodeHex(topic)
	if err != nil {
		return "", err
	}
	if len(raw) != wordSize {
		return "", fmt.Errorf("topic is %d bytes, want 32", len(raw))
	}
	return encodeHex(raw[wordSize-20:]), nil
}

// PairCreatedEvent is a decoded V2 factory PairCreated log.
type PairCreatedEvent struct {
	Token0 string
	Token1 string
	Pair   string
}

// ParsePairCreated decodes a V2 PairCreated log.
func ParsePairCreated(lg Log) (*PairCreatedEvent, error) {
	if len(lg.Topics) < 3 || lg.Topics[0] != TopicPairCreatedV2 {
		return nil, ErrTopicMismatch
	}
	token0, err := topicAddress(lg.Topics[1])
	if err != nil {
		return nil, err
	}
	token1, err := topicAddress(lg.Topics[2])
	if err != nil {
		return nil, err
	}
	data, err := decodeHex(lg.Data)
	if err != nil {
		return nil, err
	}
	pair, err := decodeAddress(data, 0)
	if err != nil {
		return nil, err
	}
	return &PairCreatedEvent{Token0: token0, Token1: token1, Pair: pair}, nil
}

// PoolCreatedEvent is a decoded V3 factory PoolCreated log.
type PoolCreatedEvent struct {
	Token0 string
	Token1 string
	Fee    uint32
	Pool   string
}

// ParsePoolCreated decodes a V3 PoolCreated log.
func ParsePoolCreated(lg Log) (*PoolCreatedEvent, error) {
	if len(lg.Topics) < 4 || lg.Topics[0] != TopicPoolCreatedV3 {
		return nil, ErrTopicMismatch
	}
	token0, err := topicAddress(lg.Topics[1])
	if err != nil {
		return nil, err
	}
	token1, err := topicAddress(lg.Topics[2])
	if err != nil {
		return nil, err
	}
	fee, err := hexToBig(lg.Topics[3])
	if err != nil {
		return nil, err
	}
	data, err := decodeHex(lg.Data)
	if err != nil {
		return nil, err
	}
	// Data words: tickSpacing, pool.
	pool, err := decodeAddress(data, 1)
	if err != nil {
		return nil, err
	}
	return &PoolCreatedEvent{
		Token0: token0,
		Token1: token1,
		Fee:    uint32(fee.Uint64()),
		Pool:   pool,
	}, nil
}

// SwapV2Event is a decoded V2 pair Swap log. Amounts are raw token units.
type SwapV2Event struct {
	Sender     string
	To         string
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

// ParseSwapV2 decodes a V2 Swap log.
func ParseSwapV2(lg Log) (*SwapV2Event, error) {
	if len(lg.Topics) < 3 || lg.Topics[0] != TopicSwapV2 {
		return nil, ErrTopicMismatch
	}
	sender, err := topicAddress(lg.Topics[1])
	if err != nil {
		return nil, err
	}
	to, err := topicAddress(lg.Topics[2])
	if err != nil {
		return nil, err
	}
	data, err := decodeHex(lg.Data)
	if err != nil {
		return nil, err
	}
	ev := &SwapV2Event{Sender: sender, To: to}
	for i, dst := range []**big.Int{&ev.Amount0In, &ev.Amount1In, &ev.Amount0Out, &ev.Amount1Out} {
		v, err := decodeUint(data, i)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return ev, nil
}

// MintV2Event is a decoded V2 pair Mint (liquidity add) log.
type MintV2Event struct {
	Sender  string
	Amount0 *big.Int
	Amount1 *big.Int
}

// ParseMintV2 decodes a V2 Mint log.
func ParseMintV2(lg Log) (*MintV2Event, error) {
	if len(lg.Topics) < 2 || lg.Topics[0] != TopicMintV2 {
		return nil, ErrTopicMismatch
	}
	sender, err := topicAddress(lg.Topics[1])
	if err != nil {
		return nil, err
	}
	data, err := decodeHex(lg.Data)
	if err != nil {
		return nil, err
	}
	a0, err := decodeUint(data, 0)
	if err != nil {
		return nil, err
	}
	a1, err := decodeUint(data, 1)
	if err != nil {
		return nil, err
	}
	return &MintV2Event{Sender: sender, Amount0: a0, Amount1: a1}, nil
}

// SwapV3Event is a decoded V3 pool Swap log. Amounts are signed from the
// pool's perspective: positive flows into the pool.
type SwapV3Event struct {
	Sender       string
	Recipient    string
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *big.Int
}

// ParseSwapV3 decodes a V3 Swap log.
func ParseSwapV3(lg Log) (*SwapV3Event, error) {
	if len(lg.Topics) < 3 || lg.Topics[0] != TopicSwapV3 {
		return nil, ErrTopicMismatch
	}
	sender, err := topicAddress(lg.Topics[1])
	if err != nil {
		return nil, err
	}
	recipient, err := topicAddress(lg.Topics[2])
	if err != nil {
		return nil, err
	}
	data, err := decodeHex(lg.Data)
	if err != nil {
		return nil, err
	}
	amount0, err := decodeInt(data, 0)
	if err != nil {
		return nil, err
	}
	amount1, err := decodeInt(data, 1)
	if err != nil {
		return nil, err
	}
	sqrtPrice, err := decodeUint(data, 2)
	if err != nil {
		return nil, err
	}
	liquidity, err := decodeUint(data, 3)
	if err != nil {
		return nil, err
	}
	tick, err := decodeInt(data, 4)
	if err != nil {
		return nil, err
	}
	return &SwapV3Event{
		Sender:       sender,
		Recipient:    recipient,
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         tick,
	}, nil
}

// SwapTopicFor returns the swap topic for a market type.
func SwapTopicFor(t domain.MarketType) string {
	if t == domain.MarketV3 {
		return TopicSwapV3
	}
	return TopicSwapV2
}
