// Package economy charges players for paid clan actions.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/clanregistry/internal/gameserver/clan"
)

var (
	// ErrInsufficientFunds is returned when the balance does not cover the price.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoAccounts is returned for a paid purchase when no accounts backend is attached.
	ErrNoAccounts = errors.New("no accounts backend")
)

// Accounts is the game currency collaborator.
type Accounts interface {
	Balance(ctx context.Context, player string) (float64, error)
	Withdraw(ctx context.Context, player string, amount float64) error
}

// Price is the cost of one purchase. Disabled purchases are free.
type Price struct {
	Enabled bool
	Amount  float64
}

// Prices lists the cost of each paid action.
type Prices struct {
	Creation     Price
	Verification Price
}

// PriceGate charges through Accounts. It satisfies registry.Gate.
type PriceGate struct {
	prices   Prices
	accounts Accounts
}

// NewPriceGate creates a gate. With nil accounts only free purchases pass.
func NewPriceGate(prices Prices, accounts Accounts) *PriceGate {
	return &PriceGate{prices: prices, accounts: accounts}
}

// Charge withdraws the price of purchase from player.
// Rejections wrap clan.ErrPolicyRejected.
func (g *PriceGate) Charge(ctx context.Context, player string, purchase clan.Purchase) error {
	price, err := g.price(purchase)
	if err != nil {
		return err
	}
	if !price.Enabled || price.Amount <= 0 {
		return nil
	}
	if g.accounts == nil {
		return fmt.Errorf("%w: %s: %w", clan.ErrPolicyRejected, purchase, ErrNoAccounts)
	}

	balance, err := g.accounts.Balance(ctx, player)
	if err != nil {
		return fmt.Errorf("%w: balance of %q: %w", clan.ErrPolicyRejected, player, err)
	}
	if balance < price.Amount {
		return fmt.Errorf("%w: %s costs %.2f, %q has %.2f: %w",
			clan.ErrPolicyRejected, purchase, price.Amount, player, balance, ErrInsufficientFunds)
	}
	if err := g.accounts.Withdraw(ctx, player, price.Amount); err != nil {
		return fmt.Errorf("%w: withdraw from %q: %w", clan.ErrPolicyRejected, player, err)
	}

	slog.Info("clan purchase charged", "player", player, "purchase", purchase.String(), "amount", price.Amount)
	return nil
}

func (g *PriceGate) price(purchase clan.Purchase) (Price, error) {
	switch purchase {
	case clan.PurchaseCreation:
		return g.prices.Creation, nil
	case clan.PurchaseVerification:
		return g.prices.Verification, nil
	default:
		return Price{}, fmt.Errorf("%w: unknown %s", clan.ErrPolicyRejected, purchase)
	}
}
