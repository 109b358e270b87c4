// Package fakeapi is an in-memory stand-in for the upstream catalog REST
// server. It backs the integration tests and local runs of the CLI.
package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"moviecat-admin/internal/dto"
	"moviecat-admin/internal/pkg/logger"
	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/session"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const module = "FAKEAPI"

const tokenTTL = 24 * time.Hour

type fault struct {
	method    string
	path      string
	status    int
	message   string
	remaining int
}

type Server struct {
	app    *fiber.App
	store  *Store
	secret []byte
	logger logger.ILogger

	mu     sync.Mutex
	faults []*fault
}

func New(store *Store, jwtSecret string, log logger.ILogger) *Server {
	if jwtSecret == "" {
		jwtSecret = "default_secret"
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:    app,
		store:  store,
		secret: []byte(jwtSecret),
		logger: log,
	}

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())
	app.Use(s.faultMiddleware)

	s.registerRoutes(app.Group("/api"))
	return s
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) Run(port string) error {
	s.logger.Info(module, "Fake catalog API listening", map[string]interface{}{"port": port})
	return s.app.Listen(":" + port)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) registerRoutes(api fiber.Router) {
	api.Post("/auth/login", s.login)

	rel := api.Group("/movie-relations/movies/:id")
	rel.Get("/actors", s.movieActors)
	rel.Post("/:rel", s.staffMiddleware, s.link)
	rel.Delete("/:rel/:childId", s.staffMiddleware, s.unlink)

	api.Get("/:kind/filter", s.filter)
	api.Get("/:kind/:id", s.getRecord)
	api.Put("/:kind/:id", s.staffMiddleware, s.updateRecord)
	api.Delete("/:kind/:id", s.staffMiddleware, s.deleteRecord)
}

// IssueToken signs an access token the staff middleware accepts.
func (s *Server) IssueToken(userId, role string, isStaff bool, ttl time.Duration) (string, error) {
	claims := session.Claims{
		UserID:  userId,
		Role:    role,
		IsStaff: isStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// InjectFault makes the next times requests matching method and path answer
// with status and message. times <= 0 fails every matching request until
// ClearFaults.
func (s *Server) InjectFault(method, path string, status int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, path: path, status: status, message: message, remaining: times})
}

func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

func (s *Server) faultMiddleware(ctx *fiber.Ctx) error {
	s.mu.Lock()
	var hit *fault
	for i, f := range s.faults {
		if f.method == ctx.Method() && f.path == ctx.Path() {
			hit = f
			if f.remaining > 0 {
				f.remaining--
				if f.remaining == 0 {
					s.faults = append(s.faults[:i:i], s.faults[i+1:]...)
				}
			}
			break
		}
	}
	s.mu.Unlock()

	if hit == nil {
		return ctx.Next()
	}
	s.logger.Debug(module, "Injected fault", map[string]interface{}{
		"method": hit.method, "path": hit.path, "status": hit.status,
	})
	if hit.message == "" {
		return ctx.SendStatus(hit.status)
	}
	return ctx.Status(hit.status).JSON(errorResponse(hit.status, hit.message))
}

// Middleware to check for a staff capable token.
func (s *Server) staffMiddleware(ctx *fiber.Ctx) error {
	authHeader := ctx.Get("Authorization")

	// Check if Authorization header exists and has Bearer prefix
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ctx.Status(fiber.StatusUnauthorized).JSON(errorResponse(401, "Missing or invalid authorization header"))
	}
	tokenStr := authHeader[7:]

	var claims session.Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return ctx.Status(fiber.StatusUnauthorized).JSON(errorResponse(401, "Invalid or expired token"))
	}

	if !claims.IsStaff && claims.Role != session.RoleAdmin && claims.Role != session.RoleStaff {
		return ctx.Status(fiber.StatusForbidden).JSON(errorResponse(403, "Access denied: Staff only"))
	}

	ctx.Locals("user_id", claims.UserID)
	return ctx.Next()
}

func (s *Server) login(ctx *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(400, "Invalid request body"))
	}

	acc, ok := s.store.Authenticate(req.Username, req.Password)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(errorResponse(401, "Invalid username or password"))
	}

	token, err := s.IssueToken(acc.ID, acc.Role, acc.IsStaff, tokenTTL)
	if err != nil {
		s.logger.Error(module, "Failed to sign token", map[string]interface{}{"error": err.Error()})
		return ctx.Status(fiber.StatusInternalServerError).JSON(errorResponse(500, "Failed to issue token"))
	}

	s.logger.Info(module, "User logged in", map[string]interface{}{"username": acc.Username})
	return ctx.JSON(dto.LoginResponse{AccessToken: token})
}

func (s *Server) getRecord(ctx *fiber.Ctx) error {
	kind, ok := kindParam(ctx)
	if !ok {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse(404, "Unknown collection "+ctx.Params("kind")))
	}
	rec, err := s.store.Get(kind, ctx.Params("id"))
	if err != nil {
		return storeError(ctx, err)
	}
	return ctx.JSON(rec)
}

func (s *Server) updateRecord(ctx *fiber.Ctx) error {
	kind, ok := kindParam(ctx)
	if !ok {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse(404, "Unknown collection "+ctx.Params("kind")))
	}

	var fields map[string]any
	if err := ctx.BodyParser(&fields); err != nil || len(fields) == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(400, "Request body must be a non-empty object"))
	}

	rec, err := s.store.Update(kind, ctx.Params("id"), fields)
	if err != nil {
		return storeError(ctx, err)
	}
	return ctx.JSON(rec)
}

func (s *Server) deleteRecord(ctx *fiber.Ctx) error {
	kind, ok := kindParam(ctx)
	if !ok {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse(404, "Unknown collection "+ctx.Params("kind")))
	}
	if err := s.store.Delete(kind, ctx.Params("id")); err != nil {
		return storeError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (s *Server) filter(ctx *fiber.Ctx) error {
	kind, ok := kindParam(ctx)
	if !ok {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse(404, "Unknown collection "+ctx.Params("kind")))
	}
	page := ctx.QueryInt("page", 1)
	perPage := ctx.QueryInt("per_page", 20)

	items, totalPages, total := s.store.Filter(kind, ctx.Query("name"), page, perPage)
	return ctx.JSON(fiber.Map{
		"items": items,
		"pagination": dto.PaginationMeta{
			TotalPages: totalPages,
			Page:       page,
			PerPage:    perPage,
			Total:      total,
		},
	})
}

func (s *Server) movieActors(ctx *fiber.Ctx) error {
	items, err := s.store.MovieActors(ctx.Params("id"))
	if err != nil {
		return storeError(ctx, err)
	}
	return ctx.JSON(items)
}

func (s *Server) link(ctx *fiber.Ctx) error {
	rel, ok := relationParam(ctx)
	if !ok {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse(404, "Unknown relation "+ctx.Params("rel")))
	}

	var body map[string]any
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(400, "Invalid request body"))
	}
	childId, ok := wireID(body[rel.ForeignKey()])
	if !ok {
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(400, rel.ForeignKey()+" is required"))
	}
	role := ""
	if rel.HasRole() {
		role, _ = body["role"].(string)
	}

	if err := s.store.Link(ctx.Params("id"), rel, childId, role); err != nil {
		return storeError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
}

func (s *Server) unlink(ctx *fiber.Ctx) error {
	rel, ok := relationParam(ctx)
	if !ok {
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse(404, "Unknown relation "+ctx.Params("rel")))
	}
	if err := s.store.Unlink(ctx.Params("id"), rel, ctx.Params("childId")); err != nil {
		return storeError(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func kindParam(ctx *fiber.Ctx) (entity.Kind, bool) {
	kind := entity.Kind(ctx.Params("kind"))
	return kind, kind.Valid()
}

func relationParam(ctx *fiber.Ctx) (entity.RelationKind, bool) {
	rel := entity.RelationKind(ctx.Params("rel"))
	return rel, rel.Valid()
}

func storeError(ctx *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(errorResponse(404, "Not found"))
	case errors.Is(err, ErrAlreadyLinked):
		return ctx.Status(fiber.StatusConflict).JSON(errorResponse(409, "Already linked"))
	case errors.Is(err, ErrUnknownField):
		return ctx.Status(fiber.StatusBadRequest).JSON(errorResponse(400, err.Error()))
	default:
		return ctx.Status(fiber.StatusInternalServerError).JSON(errorResponse(500, http.StatusText(500)))
	}
}

func errorResponse(code int, message string) fiber.Map {
	return fiber.Map{
		"success": false,
		"code":    code,
		"message": message,
	}
}

func wireID(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatInt(int64(t), 10), true
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	default:
		return "", false
	}
}
