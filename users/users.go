package users

import "strings"

// RoleName is the name of a staff role as the API reports it.
type RoleName string

const (
	RoleAdmin         RoleName = "admin"
	RoleAdministrador RoleName = "administrador"
	RoleSupervisor    RoleName = "supervisor"
	RoleVendedor      RoleName = "vendedor"
)

// adminRoles are the roles that grant the same dashboard access as is_admin.
var adminRoles = map[RoleName]struct{}{
	RoleAdmin:         {},
	RoleAdministrador: {},
}

// Role is the role assigned to a staff user
type Role struct {
	ID   int      `json:"id"`
	Name RoleName `json:"name"`
}

// PointSale is a sales location a staff user may operate
type PointSale struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// User is the staff profile returned by the current_user endpoint.
type User struct {
	ID         int         `json:"id"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Email      string      `json:"email"`
	Username   string      `json:"username"`
	Cellphone  string      `json:"cellphone"`
	Address    string      `json:"address"`
	IsAdmin    bool        `json:"is_admin"`
	Role       *Role       `json:"role"`
	PointSales []PointSale `json:"point_sales"`
}

// FullName concatenates first and last name with a single space.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// RoleName returns the role name, or nil when the user has no role.
func (u *User) RoleName() *string {
	if u.Role == nil {
		return nil
	}
	name := string(u.Role.Name)
	return &name
}

// PermittedPointSales returns the point-of-sale entries the user may
// operate. The result is never nil.
func (u *User) PermittedPointSales() []PointSale {
	if len(u.PointSales) == 0 {
		return []PointSale{}
	}
	out := make([]PointSale, len(u.PointSales))
	copy(out, u.PointSales)
	return out
}

// HasPointSale checks if the user may operate the given point of sale
func (u *User) HasPointSale(pointSaleID int) bool {
	for _, ps := range u.PointSales {
		if ps.ID == pointSaleID {
			return true
		}
	}
	return false
}

// IsAdminOrEquivalent returns true if the user has the admin flag or an
// admin-equivalent role. Role names compare case-insensitively.
func (u *User) IsAdminOrEquivalent() bool {
	if u.IsAdmin {
		return true
	}
	if u.Role == nil {
		return false
	}
	_, ok := adminRoles[RoleName(strings.ToLower(strings.TrimSpace(string(u.Role.Name))))]
	return ok
}

// Clone returns a deep copy so cached snapshots never share slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Role != nil {
		role := *u.Role
		c.Role = &role
	}
	if u.PointSales != nil {
		c.PointSales = make([]PointSale, len(u.PointSales))
		copy(c.PointSales, u.PointSales)
	}
	return &c
}
