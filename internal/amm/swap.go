// Package amm holds the pure pricing functions of the exchange: constant
// product swaps, fee split, two-hop routes, slippage bounds and liquidity
// share math. Nothing here touches storage; callers commit the returned
// pool copies.
package amm

import (
	"SwapLedger/internal/ledger"

	sdkmath "cosmossdk.io/math"
)

// DefaultMaxSlippage is 2%.
var DefaultMaxSlippage = sdkmath.LegacyNewDecWithPrec(2, 2)

// Quote is the outcome of paying into one pool.
type Quote struct {
	PayAfterLPFee sdkmath.Int
	GrossReceive  sdkmath.Int // leaves the reserves
	ProtocolFee   sdkmath.Int // cut of GrossReceive kept by the exchange
	Receive       sdkmath.Int // GrossReceive minus ProtocolFee
	LPFee         sdkmath.Int // pay minus PayAfterLPFee
}

// SwapAmount prices a single hop:
//
//	after_fee = pay * (10000 - lp_fee_bps) / 10000
//	gross     = reserve_out * after_fee / (reserve_in + after_fee)
//	receive   = gross - gross * protocol_fee_bps / 10000
func SwapAmount(reserveIn, reserveOut, pay sdkmath.Int, lpFeeBps, protocolFeeBps uint16) (Quote, error) {
	if pay.IsNil() || !pay.IsPositive() {
		return Quote{}, ledger.ErrZeroAmount.Wrap("pay amount")
	}
	if reserveIn.IsNil() || reserveOut.IsNil() || !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return Quote{}, ledger.ErrZeroReserves
	}
	if lpFeeBps >= BpsDenominator || protocolFeeBps >= BpsDenominator {
		return Quote{}, ledger.ErrComputation.Wrapf("fee out of range: lp=%d protocol=%d", lpFeeBps, protocolFeeBps)
	}

	afterFee, err := mulDiv(pay, sdkmath.NewInt(int64(BpsDenominator-lpFeeBps)), sdkmath.NewInt(BpsDenominator))
	if err != nil {
		return Quote{}, err
	}
	gross, err := mulDiv(reserveOut, afterFee, reserveIn.Add(afterFee))
	if err != nil {
		return Quote{}, err
	}
	if !gross.IsPositive() {
		return Quote{}, ledger.ErrComputation.Wrapf("pay amount %s too small to receive anything", pay)
	}
	protocolFee, err := bpsOf(gross, protocolFeeBps)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		PayAfterLPFee: afterFee,
		GrossReceive:  gross,
		ProtocolFee:   protocolFee,
		Receive:       gross.Sub(protocolFee),
		LPFee:         pay.Sub(afterFee),
	}, nil
}

// EffectiveProtocolFee applies a percentage discount to a protocol fee.
func EffectiveProtocolFee(bps uint16, discount uint8) uint16 {
	if discount >= ledger.MaxFeeLevel {
		return 0
	}
	return uint16(uint32(bps) * uint32(ledger.MaxFeeLevel-discount) / ledger.MaxFeeLevel)
}

// Result is a fully simulated route. Pools holds the post-swap copy of
// every pool touched, in hop order; nothing has been committed.
type Result struct {
	Calcs         []ledger.SwapCalc
	Pools         []ledger.Pool
	PayAmount     sdkmath.Int
	ReceiveAmount sdkmath.Int
	MidPrice      sdkmath.LegacyDec
	Price         sdkmath.LegacyDec
	Slippage      sdkmath.LegacyDec
}

// Simulate applies the single-hop formula along hops, feeding each hop's
// net receive into the next. discount is the caller's fee level.
func Simulate(hops []Hop, pay sdkmath.Int, discount uint8) (Result, error) {
	if len(hops) == 0 {
		return Result{}, ledger.ErrValidation.Wrap("empty route")
	}
	if pay.IsNil() || !pay.IsPositive() {
		return Result{}, ledger.ErrZeroAmount.Wrap("pay amount")
	}

	res := Result{PayAmount: pay, MidPrice: sdkmath.LegacyOneDec()}
	amount := pay
	for _, h := range hops {
		p := h.Pool
		rin, rout := p.Reserves(h.PayTokenID)
		q, err := SwapAmount(rin, rout, amount, p.LPFeeBps, EffectiveProtocolFee(p.ProtocolFeeBps, discount))
		if err != nil {
			return Result{}, err
		}
		res.MidPrice = res.MidPrice.Mul(sdkmath.LegacyNewDecFromInt(rout)).Quo(sdkmath.LegacyNewDecFromInt(rin))

		before := p
		if h.PayTokenID == p.TokenID0 {
			p.Balance0 = p.Balance0.Add(amount)
			p.Balance1 = p.Balance1.Sub(q.GrossReceive)
			p.LPFee0 = p.LPFee0.Add(q.LPFee)
			p.ProtocolFee1 = p.ProtocolFee1.Add(q.ProtocolFee)
		} else {
			p.Balance1 = p.Balance1.Add(amount)
			p.Balance0 = p.Balance0.Sub(q.GrossReceive)
			p.LPFee1 = p.LPFee1.Add(q.LPFee)
			p.ProtocolFee0 = p.ProtocolFee0.Add(q.ProtocolFee)
		}
		if err := ledger.ValidatePool(p); err != nil {
			return Result{}, ledger.ErrComputation.Wrap(err.Error())
		}
		if err := ledger.ValidateProductNonDecreasing(before, p); err != nil {
			return Result{}, ledger.ErrComputation.Wrap(err.Error())
		}

		res.Calcs = append(res.Calcs, ledger.SwapCalc{
			PoolID:         p.PoolID,
			PayTokenID:     h.PayTokenID,
			PayAmount:      amount,
			ReceiveTokenID: h.ReceiveTokenID,
			ReceiveAmount:  q.Receive,
			GrossReceive:   q.GrossReceive,
			LPFee:          q.LPFee,
			ProtocolFee:    q.ProtocolFee,
			Price:          ratio(q.Receive, amount),
		})
		res.Pools = append(res.Pools, p)
		amount = q.Receive
	}

	res.ReceiveAmount = amount
	res.Price = sdkmath.LegacyNewDecFromInt(amount).Quo(sdkmath.LegacyNewDecFromInt(pay))
	res.Slippage = sdkmath.LegacyZeroDec()
	if res.MidPrice.IsPositive() && res.Price.LT(res.MidPrice) {
		res.Slippage = res.MidPrice.Sub(res.Price).Quo(res.MidPrice)
	}
	return res, nil
}

// CheckSlippage enforces the caller's bound. When minReceive is set the
// net receive must also reach minReceive * (1 - maxSlippage).
func CheckSlippage(res Result, maxSlippage sdkmath.LegacyDec, minReceive *sdkmath.Int) error {
	if maxSlippage.IsNil() {
		maxSlippage = DefaultMaxSlippage
	}
	if maxSlippage.IsNegative() || maxSlippage.GT(sdkmath.LegacyOneDec()) {
		return ledger.ErrValidation.Wrapf("max slippage %s out of range", maxSlippage)
	}
	if res.Slippage.GT(maxSlippage) {
		return ledger.ErrSlippage.Wrapf("slippage %s exceeds max %s", res.Slippage, maxSlippage)
	}
	if minReceive != nil && !minReceive.IsNil() {
		floor := sdkmath.LegacyNewDecFromInt(*minReceive).Mul(sdkmath.LegacyOneDec().Sub(maxSlippage)).TruncateInt()
		if res.ReceiveAmount.LT(floor) {
			return ledger.ErrSlippage.Wrapf("receive amount %s below minimum %s", res.ReceiveAmount, floor)
		}
	}
	return nil
}
