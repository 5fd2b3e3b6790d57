package ledger

import "github.com/shopspring/decimal"

// Epsilon is the tolerance under which a single-unit net of debits and
// credits counts as balanced. It absorbs float accumulation in amounts that
// arrived as textual or binary-float representations.
var Epsilon = decimal.RequireFromString("0.001")

// Imbalance is the signed amount, in a single unit, by which a transaction's
// debits and credits fail to offset. Side names the side that is missing:
// a transaction with only a debit has a credit-side imbalance.
type Imbalance struct {
	Unit   string
	Side   Side
	Amount decimal.Decimal
}

// Balance is the result of evaluating an entry list.
type Balance struct {
	Balanced  bool
	Imbalance *Imbalance
}

// Evaluate computes the double-entry balance state of an entry list. It is a
// pure function of the entries:
//
//   - zero entries: unbalanced, no imbalance to report
//   - entries spanning two or more units: implicitly balanced, since the
//     ledger does not model exchange rates between units
//   - one unit: balanced iff |sum(debits) - sum(credits)| < Epsilon,
//     otherwise the imbalance names the missing side and the absolute net
func Evaluate(entries []Entry) Balance {
	if len(entries) == 0 {
		return Balance{Balanced: false}
	}

	unit := entries[0].Unit
	var debits, credits decimal.Decimal
	for _, e := range entries {
		if e.Unit != unit {
			return Balance{Balanced: true}
		}
		switch e.Side {
		case SideDebit:
			debits = debits.Add(e.Amount)
		case SideCredit:
			credits = credits.Add(e.Amount)
		}
	}

	net := debits.Sub(credits)
	if net.Abs().LessThan(Epsilon) {
		return Balance{Balanced: true}
	}
	side := SideCredit // net > 0: a credit of net is missing
	if net.Sign() < 0 {
		side = SideDebit
	}
	return Balance{Balanced: false, Imbalance: &Imbalance{Unit: unit, Side: side, Amount: net.Abs()}}
}

// Matches reports whether the imbalance is the complement of the given
// target: opposite side, same unit if one is given, and equal amount within
// Epsilon.
func (im *Imbalance) Matches(amount decimal.Decimal, side Side, unit string) bool {
	if im == nil {
		return false
	}
	if im.Side != side.Opposite() {
		return false
	}
	if unit != "" && im.Unit != unit {
		return false
	}
	return im.Amount.Sub(amount).Abs().LessThan(Epsilon)
}
