package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"propdesk/internal/config"
)

// Sizing rejection reasons, recorded verbatim on the signal row.
const (
	SizingBelowMinimum          = "BelowMinimum"
	SizingAboveLimits           = "AboveLimits"
	SizingPortfolioRiskExceeded = "PortfolioRiskExceeded"
)

// SizingInput carries everything the sizer needs; it reads nothing else, so
// the function stays pure and test friendly.
type SizingInput struct {
	Equity decimal.Decimal
	// Price is the reference entry from the reprice step.
	Price decimal.Decimal
	// Risk is the per-unit stop distance from the reprice step.
	Risk decimal.Decimal
	// OpenRisk is the summed USD risk of all currently open trades.
	OpenRisk decimal.Decimal
}

// Sizing is a concrete position size or a rejection. RiskUSD is what hitting
// the stop would cost at the final size; the portfolio guard sums this figure
// across open trades.
type Sizing struct {
	SizeUSD      decimal.Decimal
	RiskUSD      decimal.Decimal
	Rejected     bool
	RejectReason string
	RejectDetail string
}

// ComputePositionSize scales the notional so that hitting the stop loses
// exactly risk_per_trade_pct of equity, then applies the absolute and
// relative caps and the portfolio-level risk guard. The guard is evaluated
// against the risk already carried by open positions, not per trade in
// isolation.
func ComputePositionSize(cfg config.RiskConfig, in SizingInput) Sizing {
	if in.Price.LessThanOrEqual(decimal.Zero) || in.Risk.LessThanOrEqual(decimal.Zero) || in.Equity.LessThanOrEqual(decimal.Zero) {
		return Sizing{
			Rejected:     true,
			RejectReason: SizingBelowMinimum,
			RejectDetail: "non-positive price, risk or equity",
		}
	}

	hundred := decimal.NewFromInt(100)
	riskBudget := in.Equity.Mul(decimal.NewFromFloat(cfg.RiskPerTradePct)).Div(hundred)
	stopDistancePct := in.Risk.Div(in.Price)

	// size = budget / (stop distance as a fraction of price); a stop-out on
	// this notional loses exactly the budget.
	raw := riskBudget.Div(stopDistancePct)

	minUSD := decimal.NewFromFloat(cfg.MinPositionSizeUSD)
	maxUSD := decimal.NewFromFloat(cfg.MaxPositionSizeUSD)
	pctCap := in.Equity.Mul(decimal.NewFromFloat(cfg.MaxPositionSizePct)).Div(hundred)

	if raw.LessThan(minUSD) {
		return Sizing{
			Rejected:     true,
			RejectReason: SizingBelowMinimum,
			RejectDetail: fmt.Sprintf("computed size %s below minimum %s", raw.StringFixed(2), minUSD.StringFixed(2)),
		}
	}

	cap := maxUSD
	if pctCap.LessThan(cap) {
		cap = pctCap
	}
	if cap.LessThan(minUSD) {
		return Sizing{
			Rejected:     true,
			RejectReason: SizingAboveLimits,
			RejectDetail: fmt.Sprintf("size caps squeeze below minimum: cap %s < min %s", cap.StringFixed(2), minUSD.StringFixed(2)),
		}
	}

	size := raw
	if size.GreaterThan(cap) {
		size = cap
	}

	riskUSD := size.Mul(stopDistancePct)
	portfolioCap := in.Equity.Mul(decimal.NewFromFloat(cfg.MaxPortfolioRisk)).Div(hundred)
	if in.OpenRisk.Add(riskUSD).GreaterThan(portfolioCap) {
		return Sizing{
			Rejected:     true,
			RejectReason: SizingPortfolioRiskExceeded,
			RejectDetail: fmt.Sprintf("open risk %s + new risk %s exceeds portfolio cap %s",
				in.OpenRisk.StringFixed(2), riskUSD.StringFixed(2), portfolioCap.StringFixed(2)),
		}
	}

	return Sizing{SizeUSD: size, RiskUSD: riskUSD}
}
