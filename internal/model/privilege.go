package model

// Privilege codes carried in access token claims. Identity is issued by the external auth service.
const (
	PrivOrderView      = "order:view"
	PrivOrderManage    = "order:manage"
	PrivCancelResolve  = "cancel_request:resolve"
	PrivReturnManage   = "return:manage"
	PrivInventoryView  = "inventory:view"
	PrivInventoryWrite = "inventory:write"
	PrivCouponManage   = "coupon:manage"
	PrivLoyaltyAdjust  = "loyalty:adjust"
)

// Role codes as constants
const (
	RoleAdmin    = "ADMIN"
	RoleStaff    = "STAFF"
	RoleCustomer = "CUSTOMER"
)

// DefaultRolePrivileges is what the auth service grants per role; used for seeding dev tokens.
var DefaultRolePrivileges = map[string][]string{
	RoleAdmin: {
		PrivOrderView, PrivOrderManage, PrivCancelResolve, PrivReturnManage,
		PrivInventoryView, PrivInventoryWrite, PrivCouponManage, PrivLoyaltyAdjust,
	},
	RoleStaff: {
		PrivOrderView, PrivOrderManage, PrivReturnManage, PrivInventoryView,
	},
	RoleCustomer: {},
}
