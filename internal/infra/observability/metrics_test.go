package observability_test

import (
	"testing"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Empty(t *testing.T) {
	s := observability.NewMetrics().Snapshot()

	assert.Zero(t, s.CacheHitRate)
	assert.Zero(t, s.ExternalErrors)
	assert.Empty(t, s.Transitions)
	assert.Empty(t, s.Exports)
}

func TestSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrCacheHit("condominios")
	m.IncrCacheHit("condominios")
	m.IncrCacheHit("sessions")
	m.IncrCacheMiss("condominios")
	m.IncrExternalError("supabase")
	m.IncrExternalError("gotenberg")
	m.IncrTransition(domain.StatusEmAndamento)
	m.IncrTransition(domain.StatusEmAndamento)
	m.IncrTransition(domain.StatusFinal)
	m.IncrExport("pdf")
	m.IncrExport("mensal_xlsx")
	m.IncrRateLimitRejection("diagnostico")
	m.AddAuditsGenerated(3)
	m.RecordRequestDuration("Relatorio.Gerar", 120*time.Millisecond)

	s := m.Snapshot()
	assert.InDelta(t, 0.75, s.CacheHitRate, 1e-9)
	assert.Equal(t, float64(2), s.ExternalErrors)
	assert.Equal(t, map[string]float64{"em_andamento": 2, "final": 1}, s.Transitions)
	assert.Equal(t, map[string]float64{"pdf": 1, "mensal_xlsx": 1}, s.Exports)
	assert.Equal(t, float64(1), s.RateLimitRejections)
}

func TestRegistryIsPrivate(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()
	a.AddAuditsGenerated(2)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["metalav_audits_generated_total"])

	families, err = b.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "metalav_audits_generated_total" {
			assert.Zero(t, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
}
