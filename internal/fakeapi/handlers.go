package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/PicoHBK/clubnorte/apiclient"
	"github.com/PicoHBK/clubnorte/auth"
	"github.com/PicoHBK/clubnorte/users"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const maxRequestBody = 1 << 20

const (
	msgBadBody          = "Cuerpo de la solicitud inválido"
	msgBadCredentials   = "Credenciales inválidas"
	msgTooManyAttempts  = "Demasiados intentos de inicio de sesión"
	msgLoggedIn         = "Inicio de sesión exitoso"
	msgLoggedOut        = "Sesión cerrada"
	msgUnknownPointSale = "Punto de venta no encontrado"
	msgUserGone         = "Usuario no encontrado"
	msgOK               = "OK"
)

func writeEnvelope(w http.ResponseWriter, status int, ok bool, message string, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiclient.Envelope[any]{Status: ok, Message: message, Body: body})
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

func (s *Server) staffLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeEnvelope(w, http.StatusUnprocessableEntity, false, msgBadBody, nil)
		return
	}
	if err := s.validator.ValidateCredentials(creds); err != nil {
		writeEnvelope(w, http.StatusUnprocessableEntity, false, err.Error(), nil)
		return
	}

	email := normaliseEmail(creds.Email)
	key := "staff:" + email
	if s.throttled(key) {
		writeEnvelope(w, http.StatusTooManyRequests, false, msgTooManyAttempts, nil)
		return
	}

	s.mu.Lock()
	rec := s.staff[email]
	s.mu.Unlock()
	if rec == nil || bcrypt.CompareHashAndPassword(rec.hash, []byte(creds.Password)) != nil {
		s.recordFailedAttempt(key)
		s.logger.Info().Str("email", email).Msg("Rejected staff login")
		writeEnvelope(w, http.StatusUnauthorized, false, msgBadCredentials, nil)
		return
	}
	s.resetAttempts(key)

	if err := s.startSession(w, UserCookie, kindUser, rec.user.ID); err != nil {
		s.logger.Error().Err(err).Msg("Failed to start staff session")
		writeEnvelope(w, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	writeEnvelope(w, http.StatusOK, true, msgLoggedIn, nil)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, _ := strconv.Atoi(claims.Subject)

	user, ok := s.staffByID(id)
	if !ok {
		writeEnvelope(w, http.StatusOK, false, msgUserGone, nil)
		return
	}
	writeEnvelope(w, http.StatusOK, true, msgOK, user)
}

func (s *Server) staffLogout(w http.ResponseWriter, r *http.Request) {
	s.endSession(w, r, UserCookie, kindUser)
	writeEnvelope(w, http.StatusOK, true, msgLoggedOut, nil)
}

type pointSaleLoginRequest struct {
	Password *string `json:"password"`
}

// pointSaleLogin logs a terminal in. A body without a password field is
// the terminal logout.
func (s *Server) pointSaleLogin(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeEnvelope(w, http.StatusUnprocessableEntity, false, auth.TerminalIDErr.Message, nil)
		return
	}
	var req pointSaleLoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeEnvelope(w, http.StatusUnprocessableEntity, false, msgBadBody, nil)
		return
	}
	if req.Password == nil {
		s.endSession(w, r, PointSaleCookie, kindPointSale)
		writeEnvelope(w, http.StatusOK, true, msgLoggedOut, nil)
		return
	}

	creds := auth.TerminalCredentials{TerminalID: id, Password: *req.Password}
	if err := s.validator.ValidateTerminalCredentials(creds); err != nil {
		writeEnvelope(w, http.StatusUnprocessableEntity, false, err.Error(), nil)
		return
	}

	key := "terminal:" + strconv.Itoa(id)
	if s.throttled(key) {
		writeEnvelope(w, http.StatusTooManyRequests, false, msgTooManyAttempts, nil)
		return
	}

	s.mu.Lock()
	rec := s.terminals[id]
	s.mu.Unlock()
	if rec == nil {
		writeEnvelope(w, http.StatusNotFound, false, msgUnknownPointSale, nil)
		return
	}
	if bcrypt.CompareHashAndPassword(rec.hash, []byte(creds.Password)) != nil {
		s.recordFailedAttempt(key)
		s.logger.Info().Int("point_sale_id", id).Msg("Rejected point of sale login")
		writeEnvelope(w, http.StatusUnauthorized, false, msgBadCredentials, nil)
		return
	}
	s.resetAttempts(key)

	if err := s.startSession(w, PointSaleCookie, kindPointSale, id); err != nil {
		s.logger.Error().Err(err).Msg("Failed to start point of sale session")
		writeEnvelope(w, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	writeEnvelope(w, http.StatusOK, true, msgLoggedIn, nil)
}

func (s *Server) currentPointSale(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, _ := strconv.Atoi(claims.Subject)
	writeEnvelope(w, http.StatusOK, true, msgOK, map[string]int{"id": id})
}

// listPointSales returns every point of sale to admins and the assigned
// ones to everybody else.
func (s *Server) listPointSales(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, _ := strconv.Atoi(claims.Subject)
	user, ok := s.staffByID(id)
	if !ok {
		writeEnvelope(w, http.StatusOK, false, msgUserGone, nil)
		return
	}
	if !user.IsAdminOrEquivalent() {
		writeEnvelope(w, http.StatusOK, true, msgOK, user.PermittedPointSales())
		return
	}

	s.mu.Lock()
	all := make([]users.PointSale, 0, len(s.terminals))
	for _, t := range s.terminals {
		all = append(all, t.pointSale)
	}
	s.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	writeEnvelope(w, http.StatusOK, true, msgOK, all)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusNotFound, false, "Ruta no encontrada", nil)
}

func (s *Server) staffByID(id int) (*users.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.staff {
		if rec.user.ID == id {
			return rec.user.Clone(), true
		}
	}
	return nil, false
}

func (s *Server) startSession(w http.ResponseWriter, cookieName, kind string, subject int) error {
	raw, claims, err := s.tokens.create(kind, subject)
	if err != nil {
		return err
	}
	s.trackIssued(claims)
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    raw,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// endSession revokes the caller's session of the given kind, if any, and
// clears its cookie.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request, cookieName, kind string) {
	if claims, ok := s.sessionFromRequest(r, cookieName, kind); ok {
		s.revoke(claims)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
