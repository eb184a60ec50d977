package aggregator

import (
	"encoding/json"
	"strconv"
	"strings"

	"dexwatch/internal/domain"
)

// PairInfo is the subset of aggregator pair data this system reads.
type PairInfo struct {
	ChainSlug         string
	DexID             string
	PairAddress       string
	BaseTokenAddress  string
	QuoteTokenAddress string
	PriceUSD          float64
	LiquidityUSD      float64
	FeeTier           uint32

	Txns5mBuys  int
	Txns5mSells int
	Txns1hBuys  int
	Txns1hSells int
}

// IsV3 infers the pool generation from the aggregator's dexId string.
func (p PairInfo) IsV3() bool {
	return strings.Contains(strings.ToLower(p.DexID), "v3")
}

// MarketType returns the inferred pool generation.
func (p PairInfo) MarketType() domain.MarketType {
	if p.IsV3() {
		return domain.MarketV3
	}
	return domain.MarketV2
}

// parsePairsPayload extracts pairs from a response body. The API returns
// either {"pairs": [...]} or {"pair": {...}}; both shapes are handled.
func parsePairsPayload(body []byte) []PairInfo {
	var root map[string]interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil
	}

	var out []PairInfo
	if arr, ok := root["pairs"].([]interface{}); ok {
		for _, raw := range arr {
			if m, ok := raw.(map[string]interface{}); ok {
				out = append(out, parsePair(m))
			}
		}
	}
	if m, ok := root["pair"].(map[string]interface{}); ok {
		out = append(out, parsePair(m))
	}
	return out
}

func parsePair(m map[string]interface{}) PairInfo {
	p := PairInfo{
		DexID:       asString(m["dexId"]),
		PairAddress: domain.NormalizeAddress(asString(m["pairAddress"])),
		PriceUSD:    asFloat(m["priceUsd"]),
	}

	p.ChainSlug = asString(m["chainId"])
	if p.ChainSlug == "" {
		p.ChainSlug = asString(m["chain"])
	}

	if base, ok := m["baseToken"].(map[string]interface{}); ok {
		p.BaseTokenAddress = domain.NormalizeAddress(asString(base["address"]))
	}
	if quote, ok := m["quoteToken"].(map[string]interface{}); ok {
		p.QuoteTokenAddress = domain.NormalizeAddress(asString(quote["address"]))
	}

	if liq, ok := m["liquidity"].(map[string]interface{}); ok {
		p.LiquidityUSD = asFloat(liq["usd"])
	}

	fee := asFloat(m["feeTier"])
	if fee == 0 {
		fee = asFloat(m["fee"])
	}
	p.FeeTier = uint32(fee)

	if txns, ok := m["txns"].(map[string]interface{}); ok {
		if m5, ok := txns["m5"].(map[string]interface{}); ok {
			p.Txns5mBuys = int(asFloat(m5["buys"]))
			p.Txns5mSells = int(asFloat(m5["sells"]))
		}
		if h1, ok := txns["h1"].(map[string]interface{}); ok {
			p.Txns1hBuys = int(asFloat(h1["buys"]))
			p.Txns1hSells = int(asFloat(h1["sells"]))
		}
	}

	return p
}

// asString tolerates absent or non-string values.
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// asFloat tolerates numbers encoded as JSON numbers or strings.
func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
