package service

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var diagTracer = otel.Tracer("service/diagnostico")

const healthProbeTimeout = 3 * time.Second

// NamedChecker is a backing service probed by the health endpoints.
type NamedChecker struct {
	Name    string
	Checker port.HealthChecker
	// Optional services only degrade the overall status when down.
	Optional bool
}

// DiagnosticoService reports backend health and a metrics snapshot.
type DiagnosticoService struct {
	checkers []NamedChecker
	limiter  port.RateLimiter
	metrics  *observability.Metrics
	version  string
	logger   *zap.Logger
}

func NewDiagnosticoService(checkers []NamedChecker, limiter port.RateLimiter, metrics *observability.Metrics, version string, logger *zap.Logger) *DiagnosticoService {
	return &DiagnosticoService{
		checkers: checkers,
		limiter:  limiter,
		metrics:  metrics,
		version:  version,
		logger:   logger,
	}
}

// Health probes every backing service concurrently.
func (s *DiagnosticoService) Health(ctx context.Context) domain.HealthStatus {
	ctx, span := diagTracer.Start(ctx, "DiagnosticoService.Health")
	defer span.End()

	now := time.Now().Format(time.RFC3339)
	services := make([]domain.ServiceHealth, len(s.checkers)+1)
	services[0] = domain.ServiceHealth{Name: "metalav-api", Status: "healthy", LastChecked: now}

	var wg sync.WaitGroup
	for i, c := range s.checkers {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
			defer cancel()

			start := time.Now()
			err := c.Checker.Ping(pctx)
			h := domain.ServiceHealth{
				Name:        c.Name,
				Status:      "healthy",
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			}
			if err != nil {
				h.Status = "unhealthy"
				if c.Optional {
					h.Status = "degraded"
				}
				s.logger.Warn("health probe failed", zap.String("service", c.Name), zap.Error(err))
			}
			services[i+1] = h
		}()
	}
	wg.Wait()

	overall := "healthy"
	for _, h := range services {
		if h.Status == "unhealthy" {
			overall = "unhealthy"
			break
		}
		if h.Status == "degraded" {
			overall = "degraded"
		}
	}
	return domain.HealthStatus{Status: overall, Services: services}
}

// Diagnostico is the gestor-only view of Health plus counters. It is rate
// limited per user by a counter shared between instances.
func (s *DiagnosticoService) Diagnostico(ctx context.Context, sess *domain.Session) (*domain.Diagnostico, error) {
	ctx, span := diagTracer.Start(ctx, "DiagnosticoService.Diagnostico")
	defer span.End()

	if err := requireRole(sess, domain.RoleGestor, "ver diagnóstico"); err != nil {
		return nil, err
	}

	key := "user:" + sess.UserID
	ok, retry, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.logger.Warn("diagnostic rate limiter failed", zap.Error(err))
	} else if !ok {
		s.metrics.IncrRateLimitRejection("diagnostico")
		return nil, &domain.ErrRateLimited{Key: key, RetryAfter: int(math.Ceil(retry.Seconds()))}
	}

	return &domain.Diagnostico{
		Health:  s.Health(ctx),
		Metrics: s.metrics.Snapshot(),
		Version: s.version,
	}, nil
}
