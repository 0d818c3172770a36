package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/auth"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/imaging"
	"github.com/erazemk/gradilisce/internal/live"
	"github.com/erazemk/gradilisce/internal/media"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/telemetry"
)

// DefaultMaxUpload is the largest accepted multipart body.
const DefaultMaxUpload = 25 << 20

// Options wires the router to its dependencies. DB, JWTSecret and Media are
// required.
type Options struct {
	DB        *sql.DB
	JWTSecret string
	Media     media.Store
	MaxUpload int64
	Imaging   imaging.Options

	// Limiter throttles failed logins. Defaults to an in-memory limiter.
	Limiter auth.Limiter
	// Events receives every state change. May be nil.
	Events events.Publisher
	// Hub serves /api/ws when set.
	Hub            *live.Hub
	OriginPatterns []string

	ReferralReward decimal.Decimal
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(opts Options) http.Handler {
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}
	if opts.Limiter == nil {
		opts.Limiter = auth.NewMemoryLimiter(auth.DefaultMaxFailures, auth.DefaultWindow)
	}

	db := opts.DB
	uploads := &Uploads{DB: db, Store: opts.Media, MaxUpload: opts.MaxUpload, Imaging: opts.Imaging}

	authHandler := &AuthHandler{DB: db, JWTSecret: opts.JWTSecret, Limiter: opts.Limiter}
	usersHandler := &UsersHandler{DB: db}
	projectsHandler := &ProjectsHandler{DB: db, Uploads: uploads, Events: opts.Events}
	vendorsHandler := &VendorsHandler{DB: db, Events: opts.Events}
	materialsHandler := &MaterialsHandler{DB: db, Events: opts.Events}
	inventoryHandler := &InventoryHandler{DB: db, Uploads: uploads, Events: opts.Events}
	transfersHandler := &TransfersHandler{DB: db, Uploads: uploads, Events: opts.Events}
	requestsHandler := &RequestsHandler{DB: db, Events: opts.Events}
	notesHandler := &NotesHandler{DB: db, Uploads: uploads, Events: opts.Events}
	pastWorkHandler := &PastWorkHandler{DB: db, Uploads: uploads, Events: opts.Events}
	mediaHandler := &MediaHandler{DB: db, Uploads: uploads, Events: opts.Events}
	walletHandler := &WalletHandler{DB: db, Events: opts.Events, Reward: opts.ReferralReward}

	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.Middleware)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, apperr.CodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusMethodNotAllowed, errorBody{Message: "method not allowed", Code: apperr.CodeInvalidArgument})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public: login.
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(opts.JWTSecret, db))

			r.Post("/auth/logout", authHandler.Logout)
			r.Put("/auth/password", authHandler.ChangePassword)
			r.Get("/builder/user-roles", Roles)

			if opts.Hub != nil {
				r.Get("/ws", live.Handler(opts.Hub, opts.OriginPatterns))
			}

			// Users (admin only).
			r.Route("/users", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", usersHandler.List)
				r.Post("/", usersHandler.Create)
				r.Get("/{id}", usersHandler.Get)
				r.Put("/{id}", usersHandler.Update)
				r.Put("/{id}/password", usersHandler.ResetPassword)
				r.Delete("/{id}", usersHandler.Delete)
			})

			// Projects: read (all roles), write (manager+).
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectsHandler.List)
				r.With(requireManager).Post("/", projectsHandler.Create)
				r.Get("/{id}", projectsHandler.Get)
				r.With(requireManager).Put("/{id}", projectsHandler.Update)
				r.With(requireManager).Delete("/{id}", projectsHandler.Delete)
				r.Get("/{id}/inventory", projectsHandler.Inventory)
				r.Get("/{id}/documents", projectsHandler.Documents)
				r.Post("/{id}/documents", projectsHandler.UploadDocuments)
			})

			r.Route("/vendors", func(r chi.Router) {
				r.Get("/", vendorsHandler.List)
				r.With(requireManager).Post("/", vendorsHandler.Create)
				r.Get("/{id}", vendorsHandler.Get)
				r.With(requireManager).Put("/{id}", vendorsHandler.Update)
				r.With(requireManager).Delete("/{id}", vendorsHandler.Delete)
			})

			r.Route("/materials", func(r chi.Router) {
				r.Get("/", materialsHandler.List)
				r.With(requireManager).Post("/", materialsHandler.Create)
				r.Get("/{id}", materialsHandler.Get)
				r.With(requireManager).Put("/{id}", materialsHandler.Update)
				r.With(requireManager).Delete("/{id}", materialsHandler.Delete)
			})

			r.Route("/site-inventory", func(r chi.Router) {
				r.Get("/", inventoryHandler.List)
				r.With(requireManager).Post("/", inventoryHandler.AddStock)

				// Transfers: any role requests, manager+ decides.
				r.Route("/transfer", func(r chi.Router) {
					r.Get("/", transfersHandler.List)
					r.Post("/", transfersHandler.Create)
					r.Get("/{id}", transfersHandler.Get)
					r.With(requireManager).Post("/{id}/approve", transfersHandler.Approve)
					r.With(requireManager).Post("/{id}/reject", transfersHandler.Reject)
				})

				r.Post("/restock", requestsHandler.Restock)
				r.Post("/ask-material", requestsHandler.Ask)
				r.Route("/requests", func(r chi.Router) {
					r.Get("/", requestsHandler.List)
					r.Get("/{id}", requestsHandler.Get)
					r.With(requireManager).Post("/{id}/approve", requestsHandler.Approve)
					r.With(requireManager).Post("/{id}/reject", requestsHandler.Reject)
				})

				r.Get("/{id}", inventoryHandler.Get)
				r.With(requireManager).Put("/{id}", inventoryHandler.Update)
				r.With(requireManager).Delete("/{id}", inventoryHandler.Delete)
				r.Post("/{id}/media", inventoryHandler.UploadMedia)
				r.Get("/{id}/usage", inventoryHandler.ListUsage)
				r.Post("/{id}/usage", inventoryHandler.LogUsage)
			})

			r.Route("/note", func(r chi.Router) {
				r.Get("/", notesHandler.List)
				r.Post("/", notesHandler.Create)
				r.Get("/reminders", notesHandler.Reminders)
				r.Get("/{id}", notesHandler.Get)
				r.Put("/{id}", notesHandler.Update)
				r.Delete("/{id}", notesHandler.Delete)
				r.Post("/{id}/attachments", notesHandler.Attach)
			})

			r.Route("/my-past-work", func(r chi.Router) {
				r.Get("/", pastWorkHandler.List)
				r.Post("/start", pastWorkHandler.Start)
				r.Post("/upload", pastWorkHandler.Upload)
				r.Post("/create", pastWorkHandler.Create)
				r.Get("/{id}", pastWorkHandler.Get)
				r.Delete("/{id}", pastWorkHandler.Delete)
			})

			r.Get("/media/{id}", mediaHandler.Get)
			r.Delete("/media/{id}", mediaHandler.Delete)

			r.Route("/referral", func(r chi.Router) {
				r.Get("/", walletHandler.Referrals)
				r.Get("/code", walletHandler.ReferralCode)
				r.Post("/redeem", walletHandler.Redeem)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", walletHandler.Balance)
				r.Get("/transactions", walletHandler.Transactions)
				r.Post("/withdraw", walletHandler.Withdraw)
				r.With(requireAdmin).Post("/credit", walletHandler.Credit)
			})
		})
	})

	return r
}

// emit publishes a state change on behalf of the caller.
func emit(r *http.Request, p events.Publisher, entity, action string, id int64, projectIDs ...int64) {
	events.Emit(r.Context(), p, events.New(entity, action, id, projectIDs...).By(username(r)))
}
