package oracle

// QuoteFunc looks up an externally supplied current quote for one outcome.
// The bool is false when no quote is available.
type QuoteFunc func(marketID string, outcomeIndex int) (float64, bool)

// DefaultMark is the maximum-uncertainty prior for a binary outcome, used
// when no other price signal exists.
const DefaultMark = 0.5

// Chain resolves a mark price for an unresolved position by decreasing
// authority: resolution price, then a live quote, then the account's own
// last trade price, then DefaultMark.
type Chain struct {
	res   *ResolutionSet
	quote QuoteFunc
}

// NewChain builds a mark-price chain. quote may be nil when no live source
// is configured.
func NewChain(res *ResolutionSet, quote QuoteFunc) *Chain {
	return &Chain{res: res, quote: quote}
}

// Price walks the fallback chain, first match wins. lastTrade is the
// account's most recent trade price for this outcome; hasLast is false for
// positions that never traded (pure transfers).
func (c *Chain) Price(marketID string, outcomeIndex int, lastTrade float64, hasLast bool) float64 {
	if c.res != nil {
		if payout, ok := c.res.Payout(marketID, outcomeIndex); ok {
			return payout
		}
	}
	if c.quote != nil {
		if quote, ok := c.quote(marketID, outcomeIndex); ok && quote >= 0 && quote <= 1 {
			return quote
		}
	}
	if hasLast && lastTrade >= 0 && lastTrade <= 1 {
		return lastTrade
	}
	return DefaultMark
}
