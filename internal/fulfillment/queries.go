package fulfillment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/settlement"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/pagination"
)

// ListOrders pages through the orders the user bought or sold.
func (e *Engine) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pagination cursor")
	}
	list, err := e.orders.ListForParticipant(ctx, userID, params)
	if err != nil {
		return nil, userError(err)
	}
	return list, nil
}

func (e *Engine) SellerBalance(ctx context.Context, sellerID uuid.UUID) (*settlement.Balance, error) {
	balance, err := e.settlement.SellerBalance(ctx, e.db.DB(), sellerID)
	if err != nil {
		return nil, userError(err)
	}
	return balance, nil
}

// UpdateSetting changes a platform setting; the settings service drops its
// cached copy.
func (e *Engine) UpdateSetting(ctx context.Context, key, value string) error {
	return e.settings.Update(ctx, strings.TrimSpace(key), value)
}
