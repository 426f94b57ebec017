package apiclient

import "strconv"

// Endpoint paths, relative to the API base URL.
// All paths are defined here so stores, queries and the fake API agree.
const (
	// Staff auth
	RouteLogin       = "/api/v1/auth/login"
	RouteCurrentUser = "/api/v1/auth/current_user"
	RouteLogout      = "/api/v1/auth/logout"

	// Point-of-sale terminal auth. Logout re-posts the login path with an empty body.
	RouteLoginPointSalePrefix = "/api/v1/auth/login_point_sale/"
	RouteLoginPointSale       = RouteLoginPointSalePrefix + "{id}"
	RouteCurrentPointSale     = "/api/v1/auth/current_point_sale"

	// Resources
	RoutePointSales = "/api/v1/point_sale/get_all"
)

// LoginPointSalePath returns the login path for one terminal.
func LoginPointSalePath(id int) string {
	return RouteLoginPointSalePrefix + strconv.Itoa(id)
}
