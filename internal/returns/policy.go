package returns

import "github.com/shopspring/decimal"

// Policy decides whether a return needs an administrator's sign-off.
// Only the total amount counts; item count, reason and customer do not.
type Policy struct {
	Threshold decimal.Decimal
}

func NewPolicy(threshold decimal.Decimal) Policy {
	return Policy{Threshold: threshold}
}

// RequiresApproval reports whether total is above the threshold.
func (p Policy) RequiresApproval(total decimal.Decimal) bool {
	return total.GreaterThan(p.Threshold)
}
