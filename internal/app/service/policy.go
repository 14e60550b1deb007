package service

import (
	"sort"

	"github.com/ikkim/delivery-tracker/internal/app/model"
	"github.com/ikkim/delivery-tracker/internal/app/repository"
)

// RoleSet is the set of capabilities a user holds, derived once from the
// user's flags when a token is issued.
type RoleSet uint16

const (
	RoleSuperuser RoleSet = 1 << iota
	RoleStoreManager
	RoleInsideManager
	RoleWarehouseManager
	RoleManager
	RoleDriver
	RoleCustomerService
)

// ManagerRoles is any of the manager variants.
const ManagerRoles = RoleStoreManager | RoleInsideManager | RoleWarehouseManager | RoleManager

var roleNames = []struct {
	role RoleSet
	name string
}{
	{RoleSuperuser, "superuser"},
	{RoleStoreManager, "store_manager"},
	{RoleInsideManager, "inside_manager"},
	{RoleWarehouseManager, "warehouse_manager"},
	{RoleManager, "manager"},
	{RoleDriver, "driver"},
	{RoleCustomerService, "customer_service"},
}

// RolesForUser maps the user's flags to a RoleSet. The manager variant is
// chosen from the flags combined with is_manager.
func RolesForUser(u *model.User) RoleSet {
	var roles RoleSet
	if u.IsSuperuser {
		roles |= RoleSuperuser
	}
	if u.IsManager {
		switch {
		case u.IsCustomerService && u.IsDriver:
			roles |= RoleStoreManager
		case u.IsCustomerService:
			roles |= RoleInsideManager
		case u.IsDriver:
			roles |= RoleWarehouseManager
		default:
			roles |= RoleManager
		}
	}
	if u.IsDriver {
		roles |= RoleDriver
	}
	if u.IsCustomerService {
		roles |= RoleCustomerService
	}
	return roles
}

// ParseRoleSet is the inverse of Names; unknown names are ignored.
func ParseRoleSet(names []string) RoleSet {
	var roles RoleSet
	for _, n := range names {
		for _, rn := range roleNames {
			if rn.name == n {
				roles |= rn.role
			}
		}
	}
	return roles
}

func (r RoleSet) Names() []string {
	names := []string{}
	for _, rn := range roleNames {
		if r&rn.role != 0 {
			names = append(names, rn.name)
		}
	}
	return names
}

func (r RoleSet) Has(role RoleSet) bool { return r&role != 0 }

func (r RoleSet) IsSuperuser() bool       { return r.Has(RoleSuperuser) }
func (r RoleSet) IsManager() bool         { return r.Has(ManagerRoles) }
func (r RoleSet) IsDriver() bool          { return r.Has(RoleDriver) }
func (r RoleSet) IsCustomerService() bool { return r.Has(RoleCustomerService) }

// Principal is the authenticated caller.
type Principal struct {
	UserID   uint
	Roles    RoleSet
	StoreIDs []uint
}

// PrincipalForUser builds the principal of u; u.Stores must be preloaded.
func PrincipalForUser(u *model.User) Principal {
	ids := u.StoreIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return Principal{
		UserID:   u.ID,
		Roles:    RolesForUser(u),
		StoreIDs: ids,
	}
}

func (p Principal) InStore(storeID uint) bool {
	for _, id := range p.StoreIDs {
		if id == storeID {
			return true
		}
	}
	return false
}

// CoversStores reports whether every id in storeIDs is one of p's stores.
func (p Principal) CoversStores(storeIDs []uint) bool {
	for _, id := range storeIDs {
		if !p.InStore(id) {
			return false
		}
	}
	return true
}

// SharesStore reports whether p and the given store set intersect.
func (p Principal) SharesStore(storeIDs []uint) bool {
	for _, id := range storeIDs {
		if p.InStore(id) {
			return true
		}
	}
	return false
}

// CanManageStore gates order placement, attempt creation and full attempt
// edits for a store.
func (p Principal) CanManageStore(storeID uint) bool {
	if p.Roles.IsSuperuser() {
		return true
	}
	return (p.Roles.IsManager() || p.Roles.IsCustomerService()) && p.InStore(storeID)
}

// CanManageTemplates gates message template edits for a store.
func (p Principal) CanManageTemplates(storeID uint) bool {
	return p.Roles.IsSuperuser() || (p.Roles.IsManager() && p.InStore(storeID))
}

// OrderFilter scopes order visibility: superusers see everything, everyone
// else sees their stores' orders, and drivers additionally see orders with an
// attempt assigned to them.
func (p Principal) OrderFilter(storeID *uint) repository.OrderFilter {
	filter := repository.OrderFilter{
		StoreID:   storeID,
		StoreIDs:  p.StoreIDs,
		AllStores: p.Roles.IsSuperuser(),
	}
	if p.Roles.IsDriver() {
		filter.DriverID = p.UserID
	}
	return filter
}

// RoleFlags are the role-bearing fields of a user record.
type RoleFlags struct {
	IsSuperuser       bool
	IsManager         bool
	IsDriver          bool
	IsCustomerService bool
}

func roleFlagsOf(u *model.User) RoleFlags {
	return RoleFlags{
		IsSuperuser:       u.IsSuperuser,
		IsManager:         u.IsManager,
		IsDriver:          u.IsDriver,
		IsCustomerService: u.IsCustomerService,
	}
}

// AuthorizeUserCreation checks that p may create a user with the given flags
// in the given stores.
func AuthorizeUserCreation(p Principal, flags RoleFlags, storeIDs []uint) error {
	if p.Roles.IsSuperuser() {
		return nil
	}
	if !p.Roles.IsManager() {
		return permissionDenied("you don't have permission to create users")
	}
	if flags.IsSuperuser {
		return permissionDenied("managers may not grant superuser")
	}
	if !p.CoversStores(storeIDs) {
		return permissionDenied("you can only create users for stores you manage")
	}
	return nil
}

// UserChange describes which parts of a user record an update touches.
type UserChange struct {
	Flags    *RoleFlags
	StoreIDs *[]uint
}

// AuthorizeUserUpdate checks that p may apply change to target. target.Stores
// must be preloaded.
func AuthorizeUserUpdate(p Principal, target *model.User, change UserChange) error {
	if p.Roles.IsSuperuser() {
		return nil
	}

	self := p.UserID == target.ID
	touchesRoles := change.Flags != nil && *change.Flags != roleFlagsOf(target)
	touchesStores := change.StoreIDs != nil

	if self && !p.Roles.IsManager() {
		if touchesRoles || touchesStores {
			return permissionDenied("you cannot change your own roles or stores")
		}
		return nil
	}

	if !p.Roles.IsManager() {
		return permissionDenied("you do not have permission to update this profile")
	}

	if self {
		if touchesRoles {
			return permissionDenied("you cannot change your own roles")
		}
	} else {
		if target.IsSuperuser {
			return permissionDenied("managers may not modify superusers")
		}
		if !p.SharesStore(target.StoreIDs()) {
			return permissionDenied("you can only update users in your managed stores")
		}
	}

	if change.Flags != nil && change.Flags.IsSuperuser {
		return permissionDenied("managers may not grant superuser")
	}
	if touchesStores && !p.CoversStores(*change.StoreIDs) {
		return permissionDenied("requested stores must be a subset of your stores")
	}
	return nil
}

// attemptAccess is the level of access p has to an attempt.
type attemptAccess int

const (
	attemptAccessNone attemptAccess = iota
	attemptAccessDriver
	attemptAccessManage
)

func accessToAttempt(p Principal, storeID uint, attempt *model.DeliveryAttempt) attemptAccess {
	if p.CanManageStore(storeID) {
		return attemptAccessManage
	}
	if p.Roles.IsDriver() && attempt.HasDriver(p.UserID) {
		return attemptAccessDriver
	}
	return attemptAccessNone
}
