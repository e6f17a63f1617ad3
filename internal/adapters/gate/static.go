// Package gate answers the registrar's admin capability check.
package gate

import (
	"context"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
)

// Static decides admin-ness from a fixed account set loaded at startup.
type Static struct {
	admins map[domain.Account]struct{}
}

func NewStatic(admins ...domain.Account) *Static {
	set := make(map[domain.Account]struct{}, len(admins))
	for _, a := range admins {
		if !a.IsZero() {
			set[a] = struct{}{}
		}
	}
	return &Static{admins: set}
}

func (g *Static) IsAdmin(_ context.Context, account domain.Account) (bool, error) {
	_, ok := g.admins[account]
	return ok, nil
}

var _ ports.AdminGate = (*Static)(nil)
