package service

import (
	"context"

	"storefront-engine/internal/model"
	"storefront-engine/internal/repository"
	"storefront-engine/pkg/validator"

	"github.com/google/uuid"
)

type AddressService interface {
	Create(ctx context.Context, userID uuid.UUID, addr *model.Address) (*model.Address, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.Address, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type addressService struct {
	repo repository.AddressRepository
}

func NewAddressService(repo repository.AddressRepository) AddressService {
	return &addressService{repo: repo}
}

func (s *addressService) Create(ctx context.Context, userID uuid.UUID, addr *model.Address) (*model.Address, error) {
	if msg := validator.FirstError(addr); msg != "" {
		return nil, newError(KindValidation, "validation failed: %s", msg)
	}
	addr.ID = uuid.Nil
	addr.UserID = userID
	addr.CreatedBy = userID.String()
	addr.UpdatedBy = userID.String()
	if err := s.repo.Create(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func (s *addressService) List(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Delete soft deletes, orders keep their own snapshot of the address.
func (s *addressService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	addr, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return notFound(err, "address")
	}
	if addr.UserID != userID {
		return newError(KindNotFound, "address not found")
	}
	return s.repo.SoftDelete(ctx, id, userID.String())
}
