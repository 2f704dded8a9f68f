package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/cache"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Mocks ---

// fakeStore is an in-memory backend implementing every store port.
type fakeStore struct {
	mu          sync.Mutex
	condominios map[string]*domain.Condominio
	maquinas    map[string][]domain.Maquina
	auditorias  map[string]*domain.Auditoria
	ciclos      map[string][]domain.Ciclo
	itens       map[string][]domain.FechamentoItem
	logs        []domain.StatusLog
	usuarios    map[string]*domain.Usuario
	runs        []domain.JobRun

	// claimLost makes ClaimAuditoria behave as if another actor won.
	claimLost  bool
	logErr     error
	jobRunErr  error
	getCalls   int
	maqCalls   int
	upsertMes  []string
	lastUpdate map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		condominios: map[string]*domain.Condominio{},
		maquinas:    map[string][]domain.Maquina{},
		auditorias:  map[string]*domain.Auditoria{},
		ciclos:      map[string][]domain.Ciclo{},
		itens:       map[string][]domain.FechamentoItem{},
		usuarios:    map[string]*domain.Usuario{},
	}
}

func notFound(resource, id string) error {
	return &domain.ErrNotFound{Resource: resource, ID: id}
}

func (f *fakeStore) ListCondominios(_ context.Context, somenteAtivos bool) ([]domain.Condominio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Condominio
	for _, c := range f.condominios {
		if somenteAtivos && !c.Ativo {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) GetCondominio(_ context.Context, id string) (*domain.Condominio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	c, ok := f.condominios[id]
	if !ok {
		return nil, notFound("condominio", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) CreateCondominio(_ context.Context, in *domain.CondominioInput) (*domain.Condominio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &domain.Condominio{ID: fmt.Sprintf("cond-%d", len(f.condominios)+1), Nome: *in.Nome, Ativo: true, TipoPagamento: domain.PagamentoDireto}
	f.condominios[c.ID] = c
	return c, nil
}

func (f *fakeStore) UpdateCondominio(_ context.Context, id string, in *domain.CondominioInput) (*domain.Condominio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.condominios[id]
	if !ok {
		return nil, notFound("condominio", id)
	}
	if in.Nome != nil {
		c.Nome = *in.Nome
	}
	if in.CashbackPercent != nil {
		c.CashbackPercent = *in.CashbackPercent
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) DeleteCondominio(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.condominios, id)
	return nil
}

func (f *fakeStore) ListMaquinas(_ context.Context, condominioID string) ([]domain.Maquina, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maqCalls++
	return f.maquinas[condominioID], nil
}

func (f *fakeStore) GetMaquina(_ context.Context, id string) (*domain.Maquina, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ms := range f.maquinas {
		for _, m := range ms {
			if m.ID == id {
				cp := m
				return &cp, nil
			}
		}
	}
	return nil, notFound("maquina", id)
}

func (f *fakeStore) CreateMaquina(_ context.Context, condominioID string, in *domain.MaquinaInput) (*domain.Maquina, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := domain.Maquina{
		ID:           fmt.Sprintf("maq-%d", len(f.maquinas[condominioID])+1),
		CondominioID: condominioID,
		Categoria:    *in.Categoria,
		Capacidade:   *in.Capacidade,
		ValorCiclo:   *in.ValorCiclo,
		Ativa:        true,
	}
	f.maquinas[condominioID] = append(f.maquinas[condominioID], m)
	return &m, nil
}

func (f *fakeStore) UpdateMaquina(_ context.Context, id string, in *domain.MaquinaInput) (*domain.Maquina, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for cid, ms := range f.maquinas {
		for i := range ms {
			if ms[i].ID == id {
				if in.ValorCiclo != nil {
					ms[i].ValorCiclo = *in.ValorCiclo
				}
				f.maquinas[cid] = ms
				cp := ms[i]
				return &cp, nil
			}
		}
	}
	return nil, notFound("maquina", id)
}

func (f *fakeStore) DeleteMaquina(_ context.Context, id string) error { return nil }

func (f *fakeStore) ListAuditorias(_ context.Context, flt domain.AuditoriaFiltro) ([]domain.Auditoria, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Auditoria
	for _, a := range f.auditorias {
		if flt.MesRef != "" && a.MesRef != flt.MesRef {
			continue
		}
		if flt.AuditorID != "" && !a.IsAssignedTo(flt.AuditorID) && !(flt.IncluirSemAuditor && a.AuditorID == nil) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeStore) GetAuditoria(_ context.Context, id string) (*domain.Auditoria, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auditorias[id]
	if !ok {
		return nil, notFound("auditoria", id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListAnteriores(_ context.Context, condominioID, mesRef string, meses int) ([]domain.Auditoria, error) {
	desde, err := domain.AddMeses(mesRef, -meses)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Auditoria
	for _, a := range f.auditorias {
		if a.CondominioID == condominioID && a.MesRef >= desde && a.MesRef < mesRef {
			out = append(out, *a)
		}
	}
	// newest first
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].MesRef > out[i].MesRef {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > meses {
		out = out[:meses]
	}
	return out, nil
}

func (f *fakeStore) CreateAuditoria(_ context.Context, req *domain.CreateAuditoriaRequest) (*domain.Auditoria, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.auditorias {
		if a.CondominioID == req.CondominioID && a.MesRef == req.MesRef {
			return nil, &domain.ErrConflict{Message: "já existe"}
		}
	}
	a := &domain.Auditoria{
		ID:           fmt.Sprintf("aud-%d", len(f.auditorias)+1),
		CondominioID: req.CondominioID,
		MesRef:       req.MesRef,
		Status:       domain.StatusAberta,
		AuditorID:    req.AuditorID,
	}
	f.auditorias[a.ID] = a
	cp := *a
	return &cp, nil
}

func (f *fakeStore) UpsertAuditoriasMes(_ context.Context, ids []string, mesRef string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertMes = append(f.upsertMes, mesRef)
	criadas := 0
	for _, cid := range ids {
		exists := false
		for _, a := range f.auditorias {
			if a.CondominioID == cid && a.MesRef == mesRef {
				exists = true
			}
		}
		if exists {
			continue
		}
		id := fmt.Sprintf("aud-%d", len(f.auditorias)+1)
		f.auditorias[id] = &domain.Auditoria{ID: id, CondominioID: cid, MesRef: mesRef, Status: domain.StatusAberta}
		criadas++
	}
	return criadas, nil
}

func applyFields(a *domain.Auditoria, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "status":
			a.Status = v.(domain.AuditStatus)
		case "auditor_id":
			if v == nil {
				a.AuditorID = nil
			} else {
				s := v.(string)
				a.AuditorID = &s
			}
		case "observacoes":
			s := v.(string)
			a.Observacoes = &s
		case "comprovante_fechamento_url":
			s := v.(string)
			a.ComprovanteFechamentoURL = &s
		case "foto_agua_url":
			s := v.(string)
			a.FotoAguaURL = &s
		case "fechado_em":
			if v == nil {
				a.FechadoEm = nil
			} else {
				t, _ := time.Parse(time.RFC3339, v.(string))
				a.FechadoEm = &t
			}
		case "fechado_por":
			if v == nil {
				a.FechadoPor = nil
			} else {
				s := v.(string)
				a.FechadoPor = &s
			}
		case "agua_leitura":
			a.AguaLeitura = decimal.NewNullDecimal(v.(decimal.Decimal))
		}
	}
}

func (f *fakeStore) UpdateAuditoria(_ context.Context, id string, fields map[string]any) (*domain.Auditoria, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auditorias[id]
	if !ok {
		return nil, notFound("auditoria", id)
	}
	f.lastUpdate = fields
	applyFields(a, fields)
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ClaimAuditoria(_ context.Context, id, auditorID string, fields map[string]any) (*domain.Auditoria, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.auditorias[id]
	if !ok || f.claimLost || a.AuditorID != nil {
		return nil, nil
	}
	a.AuditorID = &auditorID
	applyFields(a, fields)
	cp := *a
	return &cp, nil
}

func (f *fakeStore) DeleteAuditoria(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.auditorias, id)
	return nil
}

func (f *fakeStore) ListCiclos(_ context.Context, auditoriaID string) ([]domain.Ciclo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ciclos[auditoriaID], nil
}

func (f *fakeStore) UpsertCiclos(_ context.Context, auditoriaID string, rows []domain.CicloInput) ([]domain.Ciclo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Ciclo, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Ciclo{AuditoriaID: auditoriaID, Categoria: r.Categoria, Capacidade: r.Capacidade, Ciclos: r.Ciclos})
	}
	f.ciclos[auditoriaID] = out
	return out, nil
}

func (f *fakeStore) ListFechamentoItens(_ context.Context, auditoriaID string) ([]domain.FechamentoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.itens[auditoriaID], nil
}

func (f *fakeStore) CreateFechamentoItem(_ context.Context, auditoriaID string, in *domain.FechamentoItemInput) (*domain.FechamentoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := domain.FechamentoItem{
		ID:            fmt.Sprintf("item-%d", len(f.itens[auditoriaID])+1),
		AuditoriaID:   auditoriaID,
		MaquinaTag:    in.MaquinaTag,
		Ciclos:        in.Ciclos,
		ValorUnitario: in.ValorUnitario,
		ValorTotal:    in.ValorUnitario.Mul(decimal.NewFromInt(int64(in.Ciclos))),
	}
	f.itens[auditoriaID] = append(f.itens[auditoriaID], it)
	return &it, nil
}

func (f *fakeStore) DeleteFechamentoItem(_ context.Context, itemID string) error { return nil }

func (f *fakeStore) InsertStatusLog(_ context.Context, log *domain.StatusLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logErr != nil {
		return f.logErr
	}
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeStore) ListStatusLog(_ context.Context, auditoriaID string) ([]domain.StatusLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StatusLog
	for _, l := range f.logs {
		if l.AuditoriaID == auditoriaID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUsuarios(_ context.Context, role domain.Role) ([]domain.Usuario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Usuario
	for _, u := range f.usuarios {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUsuario(_ context.Context, id string) (*domain.Usuario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.usuarios[id]
	if !ok {
		return nil, notFound("usuario", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) CreateUsuario(_ context.Context, u *domain.Usuario) (*domain.Usuario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.usuarios[u.ID] = &cp
	return u, nil
}

func (f *fakeStore) UpdateUsuario(_ context.Context, id string, fields map[string]any) (*domain.Usuario, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.usuarios[id]
	if !ok {
		return nil, notFound("usuario", id)
	}
	if v, ok := fields["role"]; ok {
		u.Role = v.(domain.Role)
	}
	if v, ok := fields["ativo"]; ok {
		u.Ativo = v.(bool)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) InsertJobRun(_ context.Context, run *domain.JobRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobRunErr != nil {
		return f.jobRunErr
	}
	f.runs = append(f.runs, *run)
	return nil
}

type fakeAuth struct {
	users   map[string]*domain.AuthUser // token → user
	created []string
	err     error
}

func (a *fakeAuth) GetUser(_ context.Context, token string) (*domain.AuthUser, error) {
	if u, ok := a.users[token]; ok {
		return u, nil
	}
	return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
}

func (a *fakeAuth) CreateUser(_ context.Context, email, _ string) (*domain.AuthUser, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.created = append(a.created, email)
	return &domain.AuthUser{ID: "auth-" + email, Email: email}, nil
}

type fakeStorage struct {
	uploaded map[string][]byte
	err      error
}

func (s *fakeStorage) Upload(_ context.Context, objectPath, _ string, data []byte) error {
	if s.err != nil {
		return s.err
	}
	if s.uploaded == nil {
		s.uploaded = map[string][]byte{}
	}
	s.uploaded[objectPath] = data
	return nil
}

func (s *fakeStorage) PublicURL(objectPath string) string {
	return "https://cdn.test/" + objectPath
}

type fakeExporter struct {
	pdfCalls  int
	xlsxCalls int
	err       error
}

func (e *fakeExporter) AuditoriaPDF(context.Context, *domain.Relatorio) ([]byte, error) {
	e.pdfCalls++
	return []byte("%PDF-1.7"), e.err
}

func (e *fakeExporter) MensalPDF(context.Context, *domain.RelatorioMensal) ([]byte, error) {
	e.pdfCalls++
	return []byte("%PDF-1.7"), e.err
}

func (e *fakeExporter) AuditoriaXLSX(context.Context, *domain.Relatorio) ([]byte, error) {
	e.xlsxCalls++
	return []byte("PK"), e.err
}

func (e *fakeExporter) MensalXLSX(context.Context, *domain.RelatorioMensal) ([]byte, error) {
	e.xlsxCalls++
	return []byte("PK"), e.err
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (l *fakeLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return l.allow, 30 * time.Second, l.err
}

type fakeChecker struct{ err error }

func (c fakeChecker) Ping(context.Context) error { return c.err }

var errBackend = errors.New("backend down")

// --- Fixtures ---

var (
	gestor  = &domain.Session{UserID: "u-gestor", Role: domain.RoleGestor}
	interno = &domain.Session{UserID: "u-interno", Role: domain.RoleInterno}
	auditor = &domain.Session{UserID: "u-auditor", Role: domain.RoleAuditor}
	outro   = &domain.Session{UserID: "u-outro", Role: domain.RoleAuditor}
)

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store  *fakeStore
	cond   *service.CondominioService
	audits *service.AuditoriaService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	conds := cache.New[*domain.Condominio](time.Minute)
	maqs := cache.New[[]domain.Maquina](time.Minute)
	t.Cleanup(conds.Close)
	t.Cleanup(maqs.Close)

	metrics := observability.NewMetrics()
	condSvc := service.NewCondominioService(store, conds, maqs, metrics, zap.NewNop())
	auditSvc := service.NewAuditoriaService(store, condSvc, store, metrics, zap.NewNop())

	store.condominios["c1"] = &domain.Condominio{
		ID:              "c1",
		Nome:            "Residencial Aurora",
		TipoPagamento:   domain.PagamentoDireto,
		TarifaAgua:      dec("10"),
		TarifaEnergia:   dec("1"),
		TarifaGas:       dec("5"),
		CashbackPercent: dec("20"),
		Ativo:           true,
	}
	store.condominios["c2"] = &domain.Condominio{
		ID:            "c2",
		Nome:          "Edifício Boleto",
		TipoPagamento: domain.PagamentoBoleto,
		Ativo:         true,
	}
	store.maquinas["c1"] = []domain.Maquina{
		{ID: "m1", CondominioID: "c1", Categoria: domain.CategoriaLavadora, Capacidade: "10kg", ValorCiclo: dec("16.50")},
		{ID: "m2", CondominioID: "c1", Categoria: domain.CategoriaSecadora, Capacidade: "10kg", ValorCiclo: dec("8.00")},
	}
	store.usuarios["u-auditor"] = &domain.Usuario{ID: "u-auditor", Role: domain.RoleAuditor, Ativo: true}
	store.usuarios["u-interno"] = &domain.Usuario{ID: "u-interno", Role: domain.RoleInterno, Ativo: true}

	return &fixture{store: store, cond: condSvc, audits: auditSvc}
}

func (fx *fixture) addAuditoria(id, condID, mes string, status domain.AuditStatus, auditorID *string) *domain.Auditoria {
	a := &domain.Auditoria{ID: id, CondominioID: condID, MesRef: mes, Status: status, AuditorID: auditorID}
	fx.store.auditorias[id] = a
	return a
}
