package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
)

// Typed wrappers over Caller for the fixed read-call set. Each returns the
// node's answer as-is; callers decide how a revert or zero result is treated.

// HasCode reports whether addr carries non-empty bytecode.
func HasCode(ctx context.Context, c Caller, addr string) (bool, error) {
	code, err := c.GetCode(ctx, addr)
	if err != nil {
		return false, err
	}
	trimmed := strings.TrimPrefix(code, "0x")
	return len(trimmed) > 0, nil
}

// ERC20Decimals reads decimals() from a token contract.
func ERC20Decimals(ctx context.Context, c Caller, token string) (int, error) {
	out, err := call(ctx, c, token, encodeCall(selDecimals))
	if err != nil {
		return 0, err
	}
	n, err := decodeUint(out, 0)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() > 255 {
		return 0, fmt.Errorf("implausible decimals %s", n)
	}
	return int(n.Int64()), nil
}

// ERC20TotalSupply reads totalSupply() in raw token units.
func ERC20TotalSupply(ctx context.Context, c Caller, token string) (*big.Int, error) {
	out, err := call(ctx, c, token, encodeCall(selTotalSupply))
	if err != nil {
		return nil, err
	}
	return decodeUint(out, 0)
}

// PairReserves reads getReserves() from a V2 pair.
func PairReserves(ctx context.Context, c Caller, pair string) (r0, r1 *big.Int, err error) {
	out, err := call(ctx, c, pair, encodeCall(selGetReserves))
	if err != nil {
		return nil, nil, err
	}
	if r0, err = decodeUint(out, 0); err != nil {
		return nil, nil, err
	}
	if r1, err = decodeUint(out, 1); err != nil {
		return nil, nil, err
	}
	return r0, r1, nil
}

// PoolSqrtPriceX96 reads slot0().sqrtPriceX96 from a V3 pool.
func PoolSqrtPriceX96(ctx context.Context, c Caller, pool string) (*big.Int, error) {
	out, err := call(ctx, c, pool, encodeCall(selSlot0))
	if err != nil {
		return nil, err
	}
	return decodeUint(out, 0)
}

// RouterAmountsOut calls getAmountsOut(amountIn, path) on a V2 router.
func RouterAmountsOut(ctx context.Context, c Caller, router string, amountIn *big.Int, path []string) ([]*big.Int, error) {
	words := make([][]byte, 0, 3+len(path))
	words = append(words, encodeUintWord(amountIn))
	// Dynamic array: offset to tail (two head words), then length + elements.
	words = append(words, encodeUintWord(big.NewInt(2*wordSize)))
	words = append(words, encodeUintWord(big.NewInt(int64(len(path)))))
	for _, hop := range path {
		w, err := encodeAddressWord(hop)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	out, err := call(ctx, c, router, encodeCall(selGetAmountsOut, words...))
	if err != nil {
		return nil, err
	}
	return decodeUintSlice(out, 0)
}

// FactoryPool calls getPool(tokenA, tokenB, fee) on a V3 factory.
// Tokens must be passed pre-sorted by the caller when the factory demands it.
func FactoryPool(ctx context.Context, c Caller, factory, tokenA, tokenB string, fee uint32) (string, error) {
	wa, err := encodeAddressWord(tokenA)
	if err != nil {
		return "", err
	}
	wb, err := encodeAddressWord(tokenB)
	if err != nil {
		return "", err
	}
	out, err := call(ctx, c, factory, encodeCall(selGetPool, wa, wb, encodeUintWord(big.NewInt(int64(fee)))))
	if err != nil {
		return "", err
	}
	return decodeAddress(out, 0)
}

// QuoteExactInputSingle calls the V3 quoter for a single-pool static quote
// with no price limit.
func QuoteExactInputSingle(ctx context.Context, c Caller, quoter, tokenIn, tokenOut string, fee uint32, amountIn *big.Int) (*big.Int, error) {
	wi, err := encodeAddressWord(tokenIn)
	if err != nil {
		return nil, err
	}
	wo, err := encodeAddressWord(tokenOut)
	if err != nil {
		return nil, err
	}
	data := encodeCall(selQuoteExactInputSingle,
		wi, wo,
		encodeUintWord(big.NewInt(int64(fee))),
		encodeUintWord(amountIn),
		encodeUintWord(big.NewInt(0)),
	)
	out, err := call(ctx, c, quoter, data)
	if err != nil {
		return nil, err
	}
	return decodeUint(out, 0)
}

// call runs eth_call and decodes the hex payload.
func call(ctx context.Context, c Caller, to, data string) ([]byte, error) {
	res, err := c.CallContract(ctx, to, data)
	if err != nil {
		return nil, err
	}
	return decodeHex(res)
}
