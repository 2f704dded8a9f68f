package service

import (
	"context"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var jobTracer = otel.Tracer("service/job")

const jobGerarAuditorias = "gerar_auditorias"

// JobService runs the scheduled back-office jobs.
type JobService struct {
	condominios port.CondominioStore
	auditorias  port.AuditoriaStore
	runs        port.JobRunStore
	loc         *time.Location
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func NewJobService(
	condominios port.CondominioStore,
	auditorias port.AuditoriaStore,
	runs port.JobRunStore,
	loc *time.Location,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *JobService {
	if loc == nil {
		loc = time.UTC
	}
	return &JobService{
		condominios: condominios,
		auditorias:  auditorias,
		runs:        runs,
		loc:         loc,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// GerarAuditorias creates the audit of mesRef (default: current month in the
// configured timezone) for every active condominium. Existing audits are
// left untouched, so the job can run any number of times.
func (s *JobService) GerarAuditorias(ctx context.Context, mesRef string) (*domain.GeracaoResultado, error) {
	ctx, span := jobTracer.Start(ctx, "JobService.GerarAuditorias")
	defer span.End()

	start := s.now()
	mes := domain.MesRefOf(start.In(s.loc))
	if mesRef != "" {
		var err error
		if mes, err = domain.ParseMesRef(mesRef); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("mes_ref", mes))

	conds, err := s.condominios.ListCondominios(ctx, true)
	if err != nil {
		s.recordRun(ctx, mes, start, 0, 0, err)
		return nil, err
	}
	ids := make([]string, 0, len(conds))
	for _, c := range conds {
		ids = append(ids, c.ID)
	}

	criadas := 0
	if len(ids) > 0 {
		criadas, err = s.auditorias.UpsertAuditoriasMes(ctx, ids, mes)
		if err != nil {
			s.logger.Error("monthly audit generation failed", zap.String("mes_ref", mes), zap.Error(err))
			s.recordRun(ctx, mes, start, len(ids), 0, err)
			return nil, err
		}
	}
	s.metrics.AddAuditsGenerated(criadas)

	res := &domain.GeracaoResultado{
		MesRef:           mes,
		TotalCondominios: len(ids),
		Criadas:          criadas,
		Existentes:       len(ids) - criadas,
	}
	if err := s.recordRun(ctx, mes, start, len(ids), criadas, nil); err != nil {
		res.Warning = "execução não registrada em job_runs: " + err.Error()
	}

	s.logger.Info("monthly audits generated",
		zap.String("mes_ref", mes),
		zap.Int("condominios", res.TotalCondominios),
		zap.Int("criadas", res.Criadas),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return res, nil
}

// recordRun writes the job_runs row. A failure is logged and returned for
// the caller to surface as a warning.
func (s *JobService) recordRun(ctx context.Context, mes string, start time.Time, total, criadas int, jobErr error) error {
	run := &domain.JobRun{
		Job:        jobGerarAuditorias,
		MesRef:     mes,
		Total:      total,
		Criadas:    criadas,
		Status:     "ok",
		IniciadoEm: start.UTC().Format(time.RFC3339),
		DuracaoMs:  s.now().Sub(start).Milliseconds(),
	}
	if jobErr != nil {
		run.Status = "erro"
		run.Erro = jobErr.Error()
	}
	if err := s.runs.InsertJobRun(ctx, run); err != nil {
		s.logger.Warn("failed to record job run", zap.String("job", run.Job), zap.Error(err))
		return err
	}
	return nil
}
