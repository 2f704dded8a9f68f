package domain

// ============================================================
// Health, diagnostics & job API responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// MetricsSnapshot is the counters section of GET /api/diagnostico.
type MetricsSnapshot struct {
	ExternalErrors      float64            `json:"externalErrors"`
	CacheHitRate        float64            `json:"cacheHitRate"`
	Transitions         map[string]float64 `json:"transitions"`
	Exports             map[string]float64 `json:"exports"`
	RateLimitRejections float64            `json:"rateLimitRejections"`
}

// Diagnostico is returned by GET /api/diagnostico.
type Diagnostico struct {
	Health  HealthStatus    `json:"health"`
	Metrics MetricsSnapshot `json:"metrics"`
	Version string          `json:"version"`
}

// JobRun is a row of job_runs.
type JobRun struct {
	Job        string `json:"job"`
	MesRef     string `json:"mes_ref"`
	Total      int    `json:"total"`
	Criadas    int    `json:"criadas"`
	Status     string `json:"status"`
	Erro       string `json:"erro,omitempty"`
	IniciadoEm string `json:"iniciado_em"`
	DuracaoMs  int64  `json:"duracao_ms"`
}

// GeracaoResultado is the response of the monthly generation job.
type GeracaoResultado struct {
	MesRef           string `json:"mes_ref"`
	TotalCondominios int    `json:"total_condominios"`
	Criadas          int    `json:"criadas"`
	Existentes       int    `json:"existentes"`
	Warning          string `json:"warning,omitempty"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
