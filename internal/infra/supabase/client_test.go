package supabase_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/infra/resilience"
	"github.com/metalav/auditorias-bfa-go/internal/infra/supabase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*supabase.Client, *httptest.Server) {
	t.Helper()
	return newClientWithRetries(t, 0, h)
}

func newClientWithRetries(t *testing.T, retries int, h http.HandlerFunc) (*supabase.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	client := supabase.NewClient(
		srv.Client(),
		srv.URL,
		"anon-key",
		"service-key",
		resilience.NewCircuitBreaker("supabase-test", logger),
		resilience.Config{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxConcurrency: 4},
		observability.NewMetrics(),
		logger,
	)
	return client, srv
}

func TestGetAuditoria(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/auditorias", r.URL.Path)
		assert.Equal(t, "eq.a1", r.URL.Query().Get("id"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":"a1","condominio_id":"c1","mes_ref":"2025-03-01","status":"em_andamento","agua_leitura":123.45,"energia_leitura":null}]`))
	})

	a, err := client.GetAuditoria(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmAndamento, a.Status)
	require.True(t, a.AguaLeitura.Valid)
	assert.Equal(t, "123.45", a.AguaLeitura.Decimal.String())
	assert.False(t, a.EnergiaLeitura.Valid)
}

func TestGetAuditoria_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := client.GetAuditoria(context.Background(), "a404")
	var nerr *domain.ErrNotFound
	assert.ErrorAs(t, err, &nerr)
}

func TestListAuditorias_AuditorScope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "(auditor_id.eq.u1,auditor_id.is.null)", q.Get("or"))
		assert.Equal(t, "eq.2025-03-01", q.Get("mes_ref"))
		assert.Empty(t, q.Get("auditor_id"))
		w.Write([]byte(`[{"id":"a1"},{"id":"a2"}]`))
	})

	rows, err := client.ListAuditorias(context.Background(), domain.AuditoriaFiltro{
		MesRef:            "2025-03-01",
		AuditorID:         "u1",
		IncluirSemAuditor: true,
	})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestListAnteriores_PreviousMonthsWindow(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eq.c1", q.Get("condominio_id"))
		assert.Equal(t, "(mes_ref.gte.2025-01-01,mes_ref.lt.2025-03-01)", q.Get("and"))
		assert.Equal(t, "mes_ref.desc", q.Get("order"))
		assert.Equal(t, "2", q.Get("limit"))
		w.Write([]byte(`[{"id":"a2","mes_ref":"2025-02-01"}]`))
	})

	rows, err := client.ListAnteriores(context.Background(), "c1", "2025-03-01", 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-02-01", rows[0].MesRef)
}

func TestClaimAuditoria(t *testing.T) {
	var body map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "is.null", r.URL.Query().Get("auditor_id"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &body))
		w.Write([]byte(`[{"id":"a1","auditor_id":"u1","status":"em_andamento"}]`))
	})

	a, err := client.ClaimAuditoria(context.Background(), "a1", "u1", map[string]any{"status": domain.StatusEmAndamento})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.IsAssignedTo("u1"))
	assert.Equal(t, "u1", body["auditor_id"])
	assert.Equal(t, "em_andamento", body["status"])
	assert.NotEmpty(t, body["updated_at"])
}

func TestClaimAuditoria_Lost(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	a, err := client.ClaimAuditoria(context.Background(), "a1", "u1", nil)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestUpsertAuditoriasMes_CountsInsertedRows(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "condominio_id,mes_ref", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=ignore-duplicates")

		var rows []map[string]any
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &rows))
		assert.Len(t, rows, 3)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"n1","condominio_id":"c2","mes_ref":"2025-03-01"}]`))
	})

	n, err := client.UpsertAuditoriasMes(context.Background(), []string{"c1", "c2", "c3"}, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateAuditoria_Conflict(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505"}`))
	})

	_, err := client.CreateAuditoria(context.Background(), &domain.CreateAuditoriaRequest{CondominioID: "c1", MesRef: "2025-03-01"})
	var cerr *domain.ErrConflict
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "2025-03-01")
}

func TestServerError_IsExternal(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ListCiclos(context.Background(), "a1")
	var eerr *domain.ErrExternalService
	assert.ErrorAs(t, err, &eerr)
}

func TestRetries_ClientErrorsAreNotRetried(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"bad request", http.StatusBadRequest, 1},
		{"forbidden", http.StatusForbidden, 1},
		{"too many requests", http.StatusTooManyRequests, 3},
		{"server error", http.StatusServiceUnavailable, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			client, _ := newClientWithRetries(t, 2, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.status)
			})

			_, err := client.UpdateAuditoria(context.Background(), "a1", map[string]any{"observacoes": "x"})
			var eerr *domain.ErrExternalService
			require.ErrorAs(t, err, &eerr)
			assert.Equal(t, tc.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestCircuitOpensAfterFailures(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	var err error
	for i := 0; i < 10; i++ {
		_, err = client.ListCondominios(context.Background(), true)
	}
	var open *domain.ErrCircuitOpen
	assert.ErrorAs(t, err, &open)
	assert.Less(t, atomic.LoadInt32(&calls), int32(10))
}

func TestGetUser(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"u1","email":"ana@metalav.test","aud":"authenticated"}`))
	})

	u, err := client.GetUser(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = client.GetUser(context.Background(), "bad-token")
	var uerr *domain.ErrUnauthorized
	assert.ErrorAs(t, err, &uerr)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	_, err := client.CreateUser(context.Background(), "ana@metalav.test", "senha-forte")
	var cerr *domain.ErrConflict
	assert.ErrorAs(t, err, &cerr)
}

func TestStorageUpload(t *testing.T) {
	var gotPath, gotType, gotUpsert string
	var gotBody []byte
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotUpsert = r.Header.Get("x-upsert")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"Key":"fotos/a1/agua.png"}`))
	})
	storage := supabase.NewStorage(client, "fotos")

	err := storage.Upload(context.Background(), "/a1/agua.png", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "/storage/v1/object/fotos/a1/agua.png", gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, "true", gotUpsert)
	assert.Equal(t, []byte("png"), gotBody)

	assert.Equal(t, srv.URL+"/storage/v1/object/public/fotos/a1/agua.png", storage.PublicURL("a1/agua.png"))
}

func TestPing(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/condominios", r.URL.Path)
		w.Write([]byte(`[]`))
	})

	assert.NoError(t, client.Ping(context.Background()))
}
