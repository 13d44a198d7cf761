package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pharmatrack/m/domain"
	"pharmatrack/m/internal/logger"
	"pharmatrack/m/internal/metrics"
)

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
)

type SaleService interface {
	ProcessSale(ctx context.Context, clerkID int64, cart []domain.CartLine, method domain.PaymentMethod) (*domain.Receipt, error)
	Receipt(ctx context.Context, saleID int64) (*domain.Receipt, error)
	ListSales(ctx context.Context, filter domain.SaleFilter, page, limit int) (domain.Page[domain.Sale], error)
}

type ProductService interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id int64, in domain.ProductInput) (*domain.Product, error)
	List(ctx context.Context, page, limit int) (domain.Page[domain.Product], error)
	Search(ctx context.Context, q string) ([]domain.Product, error)
	Delete(ctx context.Context, id int64) error
}

type UserService interface {
	Create(ctx context.Context, u domain.User) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Deps are the services the handlers call.
type Deps struct {
	Sales    SaleService
	Products ProductService
	Users    UserService
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Config struct {
	Secret      string
	TokenTTL    time.Duration
	CORSOrigins []string
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	Deps
	cfg Config
}

func New(deps Deps, cfg Config) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Handler{Deps: deps, cfg: cfg}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{logger.RequestIDHeader},
		AllowCredentials: true,
	}))
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware)
	}

	r.Get("/health", h.health)
	if h.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(h.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.login)

		r.Group(func(pr chi.Router) {
			pr.Use(h.authMiddleware)

			pr.Post("/users", h.createUser)

			pr.Route("/products", func(r chi.Router) {
				r.Get("/", h.listProducts)
				r.Post("/", h.createProduct)
				r.Get("/search", h.searchProducts)
				r.Get("/{id}", h.getProduct)
				r.Put("/{id}", h.updateProduct)
				r.Delete("/{id}", h.deleteProduct)
			})

			pr.Route("/sales", func(r chi.Router) {
				r.Post("/", h.createSale)
				r.Get("/", h.listSales)
				r.Get("/{id}", h.getSale)
			})
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return domain.NormalizePage(page, limit)
}

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondProblem(w, status, errorCode(status), message, nil)
}

func respondProblem(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := map[string]any{"error": code, "message": message}
	for k, v := range details {
		body[k] = v
	}
	respondJSON(w, status, body)
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return "internal_error"
}
