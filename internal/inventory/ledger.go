// Package inventory moves stock through the product ledger.
package inventory

import "context"

// Ledger mutates a product's stock with single atomic statements.
type Ledger interface {
	Increment(ctx context.Context, productID uint, n int) error
	Decrement(ctx context.Context, productID uint, n int) error
	DecrementIfAvailable(ctx context.Context, productID uint, n int) error
}

// Movement is one stock change. A positive Delta puts units back on the
// shelf, a negative one takes them out. Outflows with RequireStock fail
// instead of driving stock below zero.
type Movement struct {
	ProductID    uint
	Delta        int
	RequireStock bool
}

// In returns a movement that adds n units.
func In(productID uint, n int) Movement {
	return Movement{ProductID: productID, Delta: n}
}

// Out returns a guarded movement that removes n units.
func Out(productID uint, n int) Movement {
	return Movement{ProductID: productID, Delta: -n, RequireStock: true}
}

// Apply runs the movements in order and stops at the first failure. It
// must run inside the caller's transaction so a failure undoes the
// earlier movements.
func Apply(ctx context.Context, ledger Ledger, moves []Movement) error {
	for _, m := range moves {
		var err error
		switch {
		case m.Delta > 0:
			err = ledger.Increment(ctx, m.ProductID, m.Delta)
		case m.Delta < 0 && m.RequireStock:
			err = ledger.DecrementIfAvailable(ctx, m.ProductID, -m.Delta)
		case m.Delta < 0:
			err = ledger.Decrement(ctx, m.ProductID, -m.Delta)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Reverse returns the movements that undo moves. Reversals are never
// guarded: units that came in must be able to go back out even if stock
// was sold down in between.
func Reverse(moves []Movement) []Movement {
	out := make([]Movement, 0, len(moves))
	for i := len(moves) - 1; i >= 0; i-- {
		out = append(out, Movement{ProductID: moves[i].ProductID, Delta: -moves[i].Delta})
	}
	return out
}
