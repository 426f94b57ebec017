package fakeapi

import (
	"github.com/PicoHBK/clubnorte/internal/errors"
	"github.com/PicoHBK/clubnorte/users"
)

// Demo accounts installed by Seed.
const (
	SeedAdminEmail     = "admin@clubnorte.com"
	SeedAdminPassword  = "admin123"
	SeedSellerEmail    = "vendedor@clubnorte.com"
	SeedSellerPassword = "vendedor123"
	SeedTerminalID     = 1
	SeedTerminalPass   = "caja123"
)

var seedPointSales = []users.PointSale{
	{ID: 1, Name: "Caja Principal", Description: "Mostrador de la entrada"},
	{ID: 2, Name: "Kiosco Pileta", Description: "Kiosco junto a la pileta"},
	{ID: 3, Name: "Buffet", Description: "Buffet del gimnasio"},
}

// Seed installs demo staff and terminals.
func (s *Server) Seed() error {
	admin := users.User{
		ID:         1,
		FirstName:  "Ana",
		LastName:   "García",
		Email:      SeedAdminEmail,
		Username:   "agarcia",
		Cellphone:  "3815550101",
		Address:    "Av. Mate de Luna 1200",
		IsAdmin:    true,
		Role:       &users.Role{ID: 1, Name: users.RoleAdmin},
		PointSales: seedPointSales,
	}
	seller := users.User{
		ID:         2,
		FirstName:  "Bruno",
		LastName:   "Díaz",
		Email:      SeedSellerEmail,
		Username:   "bdiaz",
		Cellphone:  "3815550102",
		Role:       &users.Role{ID: 3, Name: users.RoleVendedor},
		PointSales: seedPointSales[:1],
	}

	if err := s.AddStaff(admin, SeedAdminPassword); err != nil {
		return errors.Wrapf(err, "[Seed] admin")
	}
	if err := s.AddStaff(seller, SeedSellerPassword); err != nil {
		return errors.Wrapf(err, "[Seed] seller")
	}
	for _, ps := range seedPointSales {
		if err := s.AddTerminal(ps, SeedTerminalPass); err != nil {
			return errors.Wrapf(err, "[Seed] point sale %d", ps.ID)
		}
	}
	return nil
}
