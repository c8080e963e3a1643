package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// Fixture is the catalogue data a development run starts from. Listings and
// carts are owned by other services, so STORAGE=memory has no other way to
// get them.
type Fixture struct {
	Listings []domain.Listing `json:"listings"`
	Carts    []domain.Cart    `json:"carts"`
}

// Seed decodes a Fixture from r and stores its listings and carts.
func (s *Store) Seed(r io.Reader) (Fixture, error) {
	var fx Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fx); err != nil {
		return Fixture{}, fmt.Errorf("decode seed: %w", err)
	}

	var errs []error
	for i, l := range fx.Listings {
		if l.ID == "" || l.SellerID == "" {
			errs = append(errs, fmt.Errorf("listing %d: id and seller_id are required", i))
		}
		if l.Status == "" {
			fx.Listings[i].Status = domain.ListingActive
		}
	}
	for i, c := range fx.Carts {
		if c.UserID == "" {
			errs = append(errs, fmt.Errorf("cart %d: user_id is required", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Fixture{}, fmt.Errorf("seed: %w", err)
	}

	for i := range fx.Listings {
		s.PutListing(&fx.Listings[i])
	}
	for i := range fx.Carts {
		s.PutCart(&fx.Carts[i])
	}
	return fx, nil
}

// SeedFile is Seed over the file at path.
func (s *Store) SeedFile(path string) (Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return s.Seed(f)
}
