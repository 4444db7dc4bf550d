package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dtroode/gophaccount-server/internal/api/http/handler"
	"github.com/dtroode/gophaccount-server/internal/api/http/middleware"
	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
)

// formOverhead is the request body allowance on top of the avatar size for
// the remaining form fields and multipart framing.
const formOverhead = 1 << 20

// Options configures the HTTP routes.
type Options struct {
	Cookie             handler.CookieConfig
	MinPasswordLength  int
	GenericLoginErrors bool
	MaxAvatarBytes     int64
}

// Router represents the HTTP router for account operations.
type Router struct {
	authService    handler.AuthService
	sessions       Sessions
	avatars        handler.AvatarService
	pinger         handler.Pinger
	contextManager model.ContextManager
	opts           Options
	logger         *logger.Logger
}

// Sessions is the session service used by both the handlers and the
// authentication middleware.
type Sessions interface {
	handler.SessionService
	middleware.SessionResolver
}

// New creates new HTTP Router instance.
func New(
	authService handler.AuthService,
	sessions Sessions,
	avatars handler.AvatarService,
	pinger handler.Pinger,
	contextManager model.ContextManager,
	opts Options,
	logger *logger.Logger,
) *Router {
	return &Router{
		authService:    authService,
		sessions:       sessions,
		avatars:        avatars,
		pinger:         pinger,
		contextManager: contextManager,
		opts:           opts,
		logger:         logger,
	}
}

// Register builds the handler tree with request logging, panic recovery and
// session resolution.
func (r *Router) Register() http.Handler {
	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.sessions, r.contextManager, r.opts.Cookie.Name, r.logger)
	errors := handler.NewErrorWriter(r.opts.MinPasswordLength, r.opts.GenericLoginErrors, r.logger)

	authHandler := handler.NewAuth(r.authService, r.sessions, r.opts.Cookie, errors, r.logger)
	twoFactorHandler := handler.NewTwoFactor(r.authService, r.sessions, r.contextManager, r.opts.Cookie, errors, r.logger)
	profileHandler := handler.NewProfile(r.authService, r.sessions, r.contextManager, r.opts.Cookie, errors, r.logger)
	avatarHandler := handler.NewAvatar(r.avatars, errors, r.logger)
	healthHandler := handler.NewHealth(r.pinger, r.logger)

	mux := chi.NewRouter()
	mux.Use(chimiddleware.RequestID)
	mux.Use(logging.Handle)
	mux.Use(chimiddleware.Recoverer)
	mux.Use(chimiddleware.RequestSize(r.opts.MaxAvatarBytes + formOverhead))
	mux.Use(authenticate.Handle)

	mux.NotFound(handler.NotFound)
	mux.MethodNotAllowed(handler.MethodNotAllowed)

	mux.Route("/auth", func(ar chi.Router) {
		ar.Post("/register", authHandler.Register)
		ar.Post("/login", authHandler.Login)
		ar.Get("/logout", authHandler.Logout)
		ar.Post("/logout", authHandler.Logout)

		ar.Group(func(pr chi.Router) {
			pr.Use(authenticate.RequireSession)
			pr.Get("/setup-2fa", twoFactorHandler.Pending)
			pr.Post("/setup-2fa", twoFactorHandler.Setup)
			pr.Get("/setup-2fa/qr.png", twoFactorHandler.QRCode)
			pr.Post("/enable-2fa", twoFactorHandler.Enable)
		})
	})

	mux.Route("/profile", func(pr chi.Router) {
		pr.Use(authenticate.RequireSession)
		pr.Get("/", profileHandler.Show)
		pr.Get("/edit", profileHandler.Show)
		pr.Post("/edit", profileHandler.Edit)
	})

	mux.Get("/avatars/{name}", avatarHandler.Serve)
	mux.Get("/healthz", healthHandler.Check)

	return mux
}
