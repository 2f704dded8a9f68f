package handler

import (
	"net/http"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services groups the application services the router exposes.
type Services struct {
	Sessions     *service.SessionService
	Condominios  *service.CondominioService
	Auditorias   *service.AuditoriaService
	Fotos        *service.FotoService
	Relatorios   *service.RelatorioService
	Usuarios     *service.UsuarioService
	Jobs         *service.JobService
	Diagnosticos *service.DiagnosticoService
}

// RouterConfig holds the HTTP-level settings.
type RouterConfig struct {
	CORSOrigins       []string
	SessionCookieName string
	CronSecret        string
	// ExportRateLimit is the number of exports per user (or IP) per minute.
	ExportRateLimit int
	Production      bool
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, cfg RouterConfig, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(secureHeaders(cfg.Production).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(durationMiddleware(metrics))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Diagnosticos))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- Cron ---
	r.Group(func(r chi.Router) {
		r.Use(CronAuthMiddleware(cfg.CronSecret, logger))
		r.Get("/api/cron/gerar-auditorias", gerarAuditoriasHandler(svc.Jobs, logger))
		r.Post("/api/cron/gerar-auditorias", gerarAuditoriasHandler(svc.Jobs, logger))
	})

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(SessionMiddleware(svc.Sessions, cfg.SessionCookieName, logger))

		r.Get("/me", meHandler())

		// Condomínios & máquinas
		r.Get("/condominios", listCondominiosHandler(svc.Condominios, logger))
		r.Post("/condominios", createCondominioHandler(svc.Condominios, logger))
		r.Get("/condominios/{id}", getCondominioHandler(svc.Condominios, logger))
		r.Patch("/condominios/{id}", updateCondominioHandler(svc.Condominios, logger))
		r.Delete("/condominios/{id}", deleteCondominioHandler(svc.Condominios, logger))
		r.Get("/condominios/{id}/maquinas", listMaquinasHandler(svc.Condominios, logger))
		r.Post("/condominios/{id}/maquinas", createMaquinaHandler(svc.Condominios, logger))
		r.Patch("/maquinas/{id}", updateMaquinaHandler(svc.Condominios, logger))
		r.Delete("/maquinas/{id}", deleteMaquinaHandler(svc.Condominios, logger))

		// Auditorias
		r.Get("/auditorias", listAuditoriasHandler(svc.Auditorias, logger))
		r.Post("/auditorias", createAuditoriaHandler(svc.Auditorias, logger))
		r.Route("/auditorias/{id}", func(r chi.Router) {
			r.Get("/", getAuditoriaHandler(svc.Auditorias, logger))
			r.Patch("/", updateAuditoriaHandler(svc.Auditorias, logger))
			r.Delete("/", deleteAuditoriaHandler(svc.Auditorias, logger))

			r.Post("/iniciar", transitionHandler(svc.Auditorias.Iniciar, logger))
			r.Post("/enviar", transitionHandler(svc.Auditorias.EnviarConferencia, logger))
			r.Post("/reabrir", transitionHandler(svc.Auditorias.Reabrir, logger))
			r.Post("/devolver", devolverHandler(svc.Auditorias, logger))
			r.Post("/finalizar", finalizarHandler(svc.Auditorias, logger))
			r.Get("/historico", historicoHandler(svc.Auditorias, logger))

			r.Post("/atribuir", atribuirHandler(svc.Auditorias, logger))
			r.Delete("/atribuir", desatribuirHandler(svc.Auditorias, logger))

			r.Get("/ciclos", getCiclosHandler(svc.Auditorias, logger))
			r.Put("/ciclos", putCiclosHandler(svc.Auditorias, logger))

			r.Get("/fechamento/itens", listItensHandler(svc.Auditorias, logger))
			r.Post("/fechamento/itens", createItemHandler(svc.Auditorias, logger))

			r.Post("/fotos", uploadFotoHandler(svc.Fotos, logger))
		})
		r.Delete("/fechamento/itens/{itemId}", deleteItemHandler(svc.Auditorias, logger))

		// Usuários
		r.Get("/usuarios", listUsuariosHandler(svc.Usuarios, logger))
		r.Post("/usuarios", createUsuarioHandler(svc.Usuarios, logger))
		r.Patch("/usuarios/{id}", updateUsuarioHandler(svc.Usuarios, logger))

		// Relatórios
		r.Route("/relatorios", func(r chi.Router) {
			r.Get("/auditorias/{id}", relatorioHandler(svc.Relatorios, logger))
			r.Get("/mensal", relatorioMensalHandler(svc.Relatorios, logger))

			r.Group(func(r chi.Router) {
				r.Use(exportLimiter(cfg.ExportRateLimit, metrics))
				r.Get("/auditorias/{id}/{formato:pdf|xlsx}", exportRelatorioHandler(svc.Relatorios, logger))
				r.Get("/mensal/{formato:pdf|xlsx}", exportMensalHandler(svc.Relatorios, logger))
			})
		})

		r.Get("/diagnostico", diagnosticoHandler(svc.Diagnosticos, logger))
	})

	return r
}

func secureHeaders(production bool) *secure.Secure {
	return secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:         31536000,
		IsDevelopment:      !production,
	})
}

// exportLimiter throttles report exports per user, falling back to the
// client IP.
func exportLimiter(perMinute int, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 30
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(exportRateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.IncrRateLimitRejection("export")
			writeError(w, http.StatusTooManyRequests, "limite de exportações excedido, tente novamente em instantes")
		}),
	)
}

func exportRateKey(r *http.Request) (string, error) {
	if sess := SessionFromContext(r.Context()); sess != nil {
		return "user:" + sess.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// durationMiddleware records request latency per route pattern.
func durationMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			pattern := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			metrics.RecordRequestDuration(r.Method+" "+pattern, time.Since(start))
		})
	}
}
