// Package http arma el borde del servicio: router, middlewares y ciclo de
// vida del servidor.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rolekits/core/internal/auth"
	"github.com/rolekits/core/internal/bus"
	"github.com/rolekits/core/internal/http/controllers"
	"github.com/rolekits/core/internal/http/middlewares"
	"github.com/rolekits/core/internal/observability/logger"
)

// Deps son los colaboradores que el servidor necesita ya construidos. El
// wiring vive en cmd; acá solo se enchufa.
type Deps struct {
	Gate    *auth.Gate
	Bus     *bus.Bus
	Keys    *controllers.KeysController
	Resumes *controllers.ResumesController
	Events  *controllers.EventsController
	Health  *controllers.HealthController
}

// Config controla el listener y las políticas del borde.
type Config struct {
	Addr               string
	CORSAllowedOrigins []string
	RatePerMinute      int
}

// Server encapsula el http.Server con su router armado.
type Server struct {
	cfg  Config
	deps Deps
	srv  *http.Server
}

// New construye el servidor con todas las rutas registradas.
func New(cfg Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Sin WriteTimeout: cortaría los streams SSE de larga vida.
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middlewares.WithRequestID())
	r.Use(middlewares.WithLogging())
	r.Use(withMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Sin auth: health y métricas.
	r.Get("/healthz", s.deps.Health.Live)
	r.Get("/readyz", s.deps.Health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Todo /v1 pasa por el gate.
	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewares.RequireAuth(s.deps.Gate))

		r.Route("/keys", func(r chi.Router) {
			// Emisión y revocación de credenciales: rate limit agresivo.
			r.Use(httprate.LimitByIP(s.ratePerMinute(), time.Minute))
			r.Post("/", s.deps.Keys.Create)
			r.Get("/", s.deps.Keys.List)
			r.Post("/{id}/revoke", s.deps.Keys.Revoke)
			r.Delete("/{id}", s.deps.Keys.Delete)
		})

		r.Route("/resumes", func(r chi.Router) {
			r.Get("/", s.deps.Resumes.List)
			r.Get("/{id}", s.deps.Resumes.Get)
			r.Put("/{id}", s.deps.Resumes.Put)
			r.Delete("/{id}", s.deps.Resumes.Delete)

			r.Group(func(r chi.Router) {
				// Un attach por segundo por IP alcanza para reconexiones
				// legítimas de EventSource y frena loops de reconnect.
				r.Use(httprate.LimitByIP(60, time.Minute))
				r.Get("/{id}/events", s.deps.Events.Stream)
			})
		})
	})

	return r
}

// Handler expone el router armado, para tests y para montar el servicio
// detrás de otro mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ratePerMinute() int {
	if s.cfg.RatePerMinute > 0 {
		return s.cfg.RatePerMinute
	}
	return 60
}

// Run levanta el listener y bloquea hasta que el ctx se cancele o el listener
// falle. Al cancelar hace shutdown con gracia: primero cierra el bus (los
// streams SSE ven el canal cerrado y retornan), después drena el listener.
func (s *Server) Run(ctx context.Context) error {
	log := logger.With(logger.Component("http"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", logger.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		if s.deps.Bus != nil {
			s.deps.Bus.Close()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
