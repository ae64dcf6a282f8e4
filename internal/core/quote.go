package core

import (
	"SwapLedger/internal/amm"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
)

// SwapQuote is a priced route that has not been executed.
type SwapQuote struct {
	PayToken     ledger.Token
	ReceiveToken ledger.Token
	Hops         []amm.Hop
	Result       amm.Result
}

// QuoteSwap prices paying payAmount of payRef for receiveRef. discount is
// the caller's fee level.
func (e *Engine) QuoteSwap(payRef string, payAmount sdkmath.Int, receiveRef string, discount uint8) (SwapQuote, error) {
	pay, err := tradableToken(e.store, payRef)
	if err != nil {
		return SwapQuote{}, err
	}
	recv, err := tradableToken(e.store, receiveRef)
	if err != nil {
		return SwapQuote{}, err
	}
	return e.quoteSwap(e.store, pay, recv, payAmount, discount)
}

func (e *Engine) quoteSwap(r store.Reader, pay, recv ledger.Token, payAmount sdkmath.Int, discount uint8) (SwapQuote, error) {
	hops, err := amm.Route(e.finder(r), pay.TokenID, recv.TokenID, e.hubID(r))
	if err != nil {
		return SwapQuote{}, err
	}
	res, err := amm.Simulate(hops, payAmount, discount)
	if err != nil {
		return SwapQuote{}, err
	}
	return SwapQuote{PayToken: pay, ReceiveToken: recv, Hops: hops, Result: res}, nil
}

// LiquidityQuote gives pool-ordered amounts for an add or remove.
type LiquidityQuote struct {
	Pool     ledger.Pool
	Token0   ledger.Token
	Token1   ledger.Token
	Amount0  sdkmath.Int
	Amount1  sdkmath.Int
	LPAmount sdkmath.Int
}

// QuoteAddLiquidity returns the amounts a deposit would use and the LP
// units it would mint.
func (e *Engine) QuoteAddLiquidity(ref0 string, amount0 sdkmath.Int, ref1 string, amount1 sdkmath.Int) (LiquidityQuote, error) {
	p, err := resolvePair(e.store, ref0, ref1)
	if err != nil {
		return LiquidityQuote{}, err
	}
	if p.flipped {
		amount0, amount1 = amount1, amount0
	}
	use0, use1, mint, err := amm.AddLiquidityAmounts(p.pool, amount0, amount1)
	if err != nil {
		return LiquidityQuote{}, err
	}
	return LiquidityQuote{Pool: p.pool, Token0: p.token0, Token1: p.token1, Amount0: use0, Amount1: use1, LPAmount: mint}, nil
}

// QuoteRemoveLiquidity returns what burning lp units would pay out.
func (e *Engine) QuoteRemoveLiquidity(ref0, ref1 string, lp sdkmath.Int) (LiquidityQuote, error) {
	p, err := resolvePair(e.store, ref0, ref1)
	if err != nil {
		return LiquidityQuote{}, err
	}
	out0, out1, err := amm.RemoveLiquidityAmounts(p.pool, lp)
	if err != nil {
		return LiquidityQuote{}, err
	}
	return LiquidityQuote{Pool: p.pool, Token0: p.token0, Token1: p.token1, Amount0: out0, Amount1: out1, LPAmount: lp}, nil
}
