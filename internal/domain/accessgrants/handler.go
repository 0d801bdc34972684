package accessgrants

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"consent-ledger/internal/middleware"
	"consent-ledger/internal/platform/logger"
	"consent-ledger/internal/ports/auth"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, q *Query, log logger.Logger) {
	if log == nil {
		log = logger.Discard()
	}
	h := &handlers{svc: svc, q: q, log: log.With(map[string]any{"component": "http"})}

	// El grantee pide acceso
	r.Post("/grants", h.requestAccess)

	r.Route("/grants/{grantID}", func(gr chi.Router) {
		gr.Get("/", h.getGrant)
		gr.Post("/decision", h.decide)
		gr.Post("/revoke", h.revoke)
		gr.Get("/audit", h.audit)
	})

	r.Get("/me/grants", h.listMine)
	r.Get("/access/check", h.checkAccess)
}

type handlers struct {
	svc *Service
	q   *Query
	log logger.Logger
}

type requestAccessRequest struct {
	SubjectID string   `json:"subject_id"`
	Scope     []string `json:"scope"`
	Purpose   string   `json:"purpose"`
}

type decisionRequest struct {
	Decision Decision `json:"decision"`
	// TTL como duración de Go ("72h"); alternativa a TTLDays.
	TTL      string `json:"ttl"`
	TTLDays  int    `json:"ttl_days"`
	Reason   string `json:"reason"`
	Revision int64  `json:"revision"`
}

type revokeRequest struct {
	Reason   string `json:"reason"`
	Revision int64  `json:"revision"`
}

type grantResponse struct {
	ID          string     `json:"id"`
	SubjectID   string     `json:"subject_id"`
	GranteeID   string     `json:"grantee_id"`
	Scope       []string   `json:"scope"`
	Purpose     string     `json:"purpose,omitempty"`
	Status      Status     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Revision    int64      `json:"revision"`
}

type auditEntryResponse struct {
	Seq        int64     `json:"seq"`
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason,omitempty"`
	PrevHash   string    `json:"prev_hash,omitempty"`
	Hash       string    `json:"hash"`
}

type auditResponse struct {
	GrantID string               `json:"grant_id"`
	Entries []auditEntryResponse `json:"entries"`

	// Sólo con ?verify=true
	Verified    *bool  `json:"verified,omitempty"`
	VerifyError string `json:"verify_error,omitempty"`
}

type viewResponse struct {
	As      string          `json:"as"`
	Counts  map[Status]int  `json:"counts"`
	Pending []grantResponse `json:"pending"`
	Active  []grantResponse `json:"active"`
	Denied  []grantResponse `json:"denied"`
	Expired []grantResponse `json:"expired"`
	Revoked []grantResponse `json:"revoked"`
}

type accessCheckResponse struct {
	Allowed bool           `json:"allowed"`
	Grant   *grantResponse `json:"grant,omitempty"`
}

// requestAccess godoc
// @Summary Pedir acceso a los datos de un paciente
// @Description El llamador (grantee) pide acceso a las categorías `scope` de `subject_id`. Queda en `pending` hasta que el paciente decida. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags grants
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param X-Debug-Role header string false "Solo en modo dev: patient, doctor o system"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body requestAccessRequest true "Paciente, categorías y propósito"
// @Success 201 {object} grantResponse
// @Failure 400 {string} string "invalid json / validación"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 409 {string} string "ya existe un pedido pending/active con el mismo scope"
// @Router /grants [post]
func (h *handlers) requestAccess(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	// Un paciente no pide acceso a datos ajenos.
	if claims.Role == auth.RolePatient {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req requestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	g, err := h.svc.RequestAccess(r.Context(), RequestInput{
		SubjectID: req.SubjectID,
		GranteeID: claims.UserID,
		Scope:     req.Scope,
		Purpose:   req.Purpose,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGrantResponse(g))
}

// getGrant godoc
// @Summary Ver un grant
// @Description Devuelve el grant con su status efectivo (si venció, la expiración se persiste en esta lectura). Para quien no es parte, 404.
// @Tags grants
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param grantID path string true "ID del grant"
// @Success 200 {object} grantResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "not found"
// @Router /grants/{grantID} [get]
func (h *handlers) getGrant(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	g, err := h.svc.GetForParty(r.Context(), chi.URLParam(r, "grantID"), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGrantResponse(g))
}

// decide godoc
// @Summary Aprobar o rechazar un pedido
// @Description Sólo el paciente. `decision=grant` exige `ttl` (duración, ej. "72h") o `ttl_days`; `decision=deny` exige `reason`. `revision` es opcional: si viene tiene que coincidir con la actual.
// @Tags grants
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param grantID path string true "ID del grant"
// @Param payload body decisionRequest true "Decisión"
// @Success 200 {object} grantResponse
// @Failure 400 {string} string "invalid json / validación"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "transición inválida o revision desactualizada"
// @Router /grants/{grantID}/decision [post]
func (h *handlers) decide(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	ttl, err := parseTTL(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g, err := h.svc.Decide(r.Context(), DecideInput{
		GrantID:  chi.URLParam(r, "grantID"),
		ActorID:  claims.UserID,
		Decision: Decision(strings.ToLower(strings.TrimSpace(string(req.Decision)))),
		TTL:      ttl,
		Reason:   req.Reason,
		Revision: req.Revision,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGrantResponse(g))
}

// revoke godoc
// @Summary Revocar un grant activo
// @Description Sólo el paciente. Exige `reason`.
// @Tags grants
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param grantID path string true "ID del grant"
// @Param payload body revokeRequest true "Motivo"
// @Success 200 {object} grantResponse
// @Failure 400 {string} string "invalid json / validación"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "transición inválida o revision desactualizada"
// @Router /grants/{grantID}/revoke [post]
func (h *handlers) revoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	g, err := h.svc.Revoke(r.Context(), RevokeInput{
		GrantID:  chi.URLParam(r, "grantID"),
		ActorID:  claims.UserID,
		Reason:   req.Reason,
		Revision: req.Revision,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGrantResponse(g))
}

// audit godoc
// @Summary Historial de transiciones de un grant
// @Description Entradas en orden (seq asc). Con `verify=true` recalcula la cadena de hashes. Para quien no es parte, 404.
// @Tags grants
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param grantID path string true "ID del grant"
// @Param verify query bool false "Verificar la cadena"
// @Success 200 {object} auditResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "not found"
// @Router /grants/{grantID}/audit [get]
func (h *handlers) audit(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	g, err := h.svc.GetForParty(r.Context(), chi.URLParam(r, "grantID"), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	entries, err := h.svc.AuditTrail(r.Context(), g.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := auditResponse{GrantID: g.ID, Entries: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, toAuditEntryResponse(e))
	}

	if r.URL.Query().Get("verify") == "true" {
		verified := true
		if err := h.svc.VerifyAudit(r.Context(), g.ID); err != nil {
			verified = false
			out.VerifyError = err.Error()
			h.log.Warn("audit verification failed", map[string]any{"grant_id": g.ID, "err": err})
		}
		out.Verified = &verified
	}

	writeJSON(w, http.StatusOK, out)
}

// listMine godoc
// @Summary Mis grants agrupados por status
// @Description Vista del paciente (`as=subject`) o del médico (`as=grantee`). Por defecto se deduce del rol. `counts` ignora el filtro de status.
// @Tags grants
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param X-Debug-Role header string false "Solo en modo dev: patient, doctor o system"
// @Param Authorization header string false "Bearer token en producción"
// @Param as query string false "subject | grantee"
// @Param status query string false "Lista CSV de status (ej: pending,active)"
// @Param q query string false "Texto libre en ids, scope y propósito"
// @Success 200 {object} viewResponse
// @Failure 400 {string} string "parámetros inválidos"
// @Failure 401 {string} string "unauthorized"
// @Router /me/grants [get]
func (h *handlers) listMine(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	as := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("as")))
	if as == "" {
		as = "subject"
		if claims.Role == auth.RoleDoctor {
			as = "grantee"
		}
	}

	f := Filter{
		Statuses: parseStatusFilter(r.URL.Query().Get("status")),
		Text:     r.URL.Query().Get("q"),
	}

	var (
		v   View
		err error
	)
	switch as {
	case "subject":
		v, err = h.q.ForSubject(r.Context(), claims.UserID, f)
	case "grantee":
		v, err = h.q.ForGrantee(r.Context(), claims.UserID, f)
	default:
		http.Error(w, "as must be subject or grantee", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, viewResponse{
		As:      as,
		Counts:  v.Counts,
		Pending: toGrantResponses(v.Pending),
		Active:  toGrantResponses(v.Active),
		Denied:  toGrantResponses(v.Denied),
		Expired: toGrantResponses(v.Expired),
		Revoked: toGrantResponses(v.Revoked),
	})
}

// checkAccess godoc
// @Summary ¿Tengo acceso vigente?
// @Description Responde si el llamador tiene hoy un grant activo de `subject_id` que cubra `scope`.
// @Tags grants
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param subject_id query string true "Paciente"
// @Param scope query string true "Categoría de datos"
// @Success 200 {object} accessCheckResponse
// @Failure 400 {string} string "parámetros inválidos"
// @Failure 401 {string} string "unauthorized"
// @Router /access/check [get]
func (h *handlers) checkAccess(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	g, allowed, err := h.q.HasAccess(r.Context(), r.URL.Query().Get("subject_id"), claims.UserID, r.URL.Query().Get("scope"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := accessCheckResponse{Allowed: allowed}
	if allowed {
		resp := toGrantResponse(g)
		out.Grant = &resp
	}
	writeJSON(w, http.StatusOK, out)
}

func requireClaims(w http.ResponseWriter, r *http.Request) (auth.Claims, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Claims{}, false
	}
	return claims, true
}

// writeError traduce los errores del dominio a status HTTP.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrStaleRevision),
		errors.Is(err, ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("request failed", map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"err":    err,
		})
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseTTL(req decisionRequest) (time.Duration, error) {
	raw := strings.TrimSpace(req.TTL)
	if raw != "" && req.TTLDays != 0 {
		return 0, errors.New("ttl and ttl_days are mutually exclusive")
	}
	if raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, errors.New("ttl must be a duration like 72h")
		}
		return d, nil
	}
	if req.TTLDays < 0 || int64(req.TTLDays) > maxTTLDays {
		return 0, errors.New("ttl_days out of range")
	}
	return time.Duration(req.TTLDays) * 24 * time.Hour, nil
}

// maxTTLDays es el mayor ttl_days que entra en un time.Duration.
const maxTTLDays = math.MaxInt64 / int64(24*time.Hour)

// parseStatusFilter: status=pending,active (CSV opcional). Los desconocidos
// los rechaza Query con ErrValidation.
func parseStatusFilter(raw string) []Status {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make([]Status, 0)
	for _, p := range strings.Split(raw, ",") {
		s := Status(strings.ToLower(strings.TrimSpace(p)))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{
		ID:          g.ID,
		SubjectID:   g.SubjectID,
		GranteeID:   g.GranteeID,
		Scope:       g.Scope,
		Purpose:     g.Purpose,
		Status:      g.Status,
		RequestedAt: g.RequestedAt,
		DecidedAt:   g.DecidedAt,
		ExpiresAt:   g.ExpiresAt,
		Revision:    g.Revision,
	}
}

func toGrantResponses(items []Grant) []grantResponse {
	out := make([]grantResponse, 0, len(items))
	for _, g := range items {
		out = append(out, toGrantResponse(g))
	}
	return out
}

func toAuditEntryResponse(e AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		Seq:        e.Seq,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		ActorID:    e.ActorID,
		Timestamp:  e.Timestamp,
		Reason:     e.Reason,
		PrevHash:   e.PrevHash,
		Hash:       e.Hash,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
