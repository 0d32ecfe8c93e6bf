package repository

import "gorm.io/gorm"

// Repositories bundles one implementation of every repository.
type Repositories struct {
	Inventory InventoryRepository
	Orders    OrderRepository
	Cancels   CancelRequestRepository
	Returns   ReturnRequestRepository
	Loyalty   LoyaltyRepository
	Coupons   CouponRepository
	Sagas     SagaRepository
	Payments  PaymentRepository
	Addresses AddressRepository
	Cart      CartRepository
}

// NewGormRepositories wires every repository onto db.
func NewGormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Inventory: NewInventoryRepo(db),
		Orders:    NewOrderRepo(db),
		Cancels:   NewCancelRequestRepo(db),
		Returns:   NewReturnRequestRepo(db),
		Loyalty:   NewLoyaltyRepo(db),
		Coupons:   NewCouponRepo(db),
		Sagas:     NewSagaRepo(db),
		Payments:  NewPaymentRepo(db),
		Addresses: NewAddressRepo(db),
		Cart:      NewCartRepo(db),
	}
}
