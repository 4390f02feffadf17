package returns

import (
	"context"

	"go-autoparts-pos/internal/models"
)

// ReturnableLine is a sale line annotated with how much of it can still
// come back.
type ReturnableLine struct {
	Item       models.SaleItem `json:"item"`
	Returned   int             `json:"returned"`
	Returnable int             `json:"returnable"`
}

// SaleForReturn is what the register shows when a ticket is scanned at the
// returns desk.
type SaleForReturn struct {
	Sale            *models.Sale     `json:"sale"`
	PreviousReturns []models.Return  `json:"previous_returns"`
	Lines           []ReturnableLine `json:"lines"`
}

// FindSaleForReturn loads a sale with its non-cancelled returns and the
// returnable quantity of each line.
func (s *Service) FindSaleForReturn(ctx context.Context, saleID uint) (*SaleForReturn, error) {
	sale, err := s.Sales.FindByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	previous, err := s.Returns.FindActiveBySale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	returned := returnedBySaleItem(previous)
	out := &SaleForReturn{
		Sale:            sale,
		PreviousReturns: previous,
		Lines:           make([]ReturnableLine, 0, len(sale.Items)),
	}
	for _, it := range sale.Items {
		out.Lines = append(out.Lines, ReturnableLine{
			Item:       it,
			Returned:   returned[it.ID],
			Returnable: max(it.Quantity-returned[it.ID], 0),
		})
	}
	return out, nil
}
