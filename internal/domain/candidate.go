package domain

// CandidateSource records which ingress path produced a candidate.
type CandidateSource string

const (
	SourceFactory  CandidateSource = "FACTORY"
	SourceTrending CandidateSource = "TRENDING"
)

// Candidate is a market proposed for admission. Produced by the factory
// watchers and the trending poller, consumed by the gate pipeline.
type Candidate struct {
	Key    MarketKey
	Token0 string
	Token1 string
	Fee    uint32 // v3 only
	Source CandidateSource

	// ReportedLiquidityUSD is the aggregator's liquidity.usd figure when the
	// candidate came from the trending poller; zero for factory candidates.
	ReportedLiquidityUSD float64

	DiscoveredAtMs int64
}
