package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const meme = "0x1111111111111111111111111111111111111111"

func TestTargetSide(t *testing.T) {
	wbnb := "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	usdt := "0x55d398326f99059ff775485246999027b3197955"

	target, token0IsTarget := TargetSide(ChainBSC, wbnb, meme)
	assert.Equal(t, meme, target)
	assert.False(t, token0IsTarget)

	target, token0IsTarget = TargetSide(ChainBSC, meme, wbnb)
	assert.Equal(t, meme, target)
	assert.True(t, token0IsTarget)

	// Both sides base: token0 wins.
	target, token0IsTarget = TargetSide(ChainBSC, wbnb, usdt)
	assert.Equal(t, wbnb, target)
	assert.True(t, token0IsTarget)

	// Neither side base: token0 wins.
	target, token0IsTarget = TargetSide(ChainBSC, meme, "0x2222222222222222222222222222222222222222")
	assert.Equal(t, meme, target)
	assert.True(t, token0IsTarget)
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress(meme))
	assert.True(t, IsAddress("0xBB4CDB9CBD36B01BD1CBAEBF2DE08D9173BC095C"))
	assert.False(t, IsAddress("0x1234"))
	assert.False(t, IsAddress("So11111111111111111111111111111111111111112"))
	assert.False(t, IsAddress("0x11111111111111111111111111111111111111zz"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, meme, NormalizeAddress(" 0x1111111111111111111111111111111111111111 "))
	assert.Equal(t, "0xabcdef", NormalizeAddress("0xABCDEF"))
}

func TestLookupBaseToken(t *testing.T) {
	bt, ok := LookupBaseToken(ChainETH, "0xC02AAA39B223FE8D0A0E5C4F27EAD9083C756CC2")
	assert.True(t, ok)
	assert.Equal(t, "WETH", bt.Symbol)
	assert.False(t, bt.Stable)

	assert.True(t, IsStablecoin(ChainETH, "0xdac17f958d2ee523a2206206994597c13d831ec7"))
	assert.False(t, IsStablecoin(ChainETH, meme))
}
