package fakeapi

import (
	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/go-chi/chi/v5"
)

func (s *Server) initRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.faultMiddleware)

	// Staff
	r.Post(apiclient.RouteLogin, s.staffLogin)
	r.Post(apiclient.RouteLogout, s.staffLogout)
	r.With(s.requireSession(UserCookie, kindUser)).Get(apiclient.RouteCurrentUser, s.currentUser)

	// Point-of-sale terminals
	r.Post(apiclient.RouteLoginPointSale, s.pointSaleLogin)
	r.With(s.requireSession(PointSaleCookie, kindPointSale)).Get(apiclient.RouteCurrentPointSale, s.currentPointSale)

	// Resources
	r.With(s.requireSession(UserCookie, kindUser)).Get(apiclient.RoutePointSales, s.listPointSales)

	r.NotFound(s.notFound)
	return r
}
