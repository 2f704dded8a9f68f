package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AuditStatus is the audit lifecycle state.
type AuditStatus string

const (
	StatusAberta        AuditStatus = "aberta"
	StatusEmAndamento   AuditStatus = "em_andamento"
	StatusEmConferencia AuditStatus = "em_conferencia"
	StatusFinal         AuditStatus = "final"
)

func (s AuditStatus) Valid() bool {
	switch s {
	case StatusAberta, StatusEmAndamento, StatusEmConferencia, StatusFinal:
		return true
	}
	return false
}

// Utilidade identifies a metered utility.
type Utilidade string

const (
	UtilAgua    Utilidade = "agua"
	UtilEnergia Utilidade = "energia"
	UtilGas     Utilidade = "gas"
)

// Utilidades lists utilities in report order.
var Utilidades = []Utilidade{UtilAgua, UtilEnergia, UtilGas}

// Auditoria is one condominium audit for one reference month (table
// auditorias).
type Auditoria struct {
	ID                       string              `json:"id"`
	CondominioID             string              `json:"condominio_id"`
	MesRef                   string              `json:"mes_ref"`
	Status                   AuditStatus         `json:"status"`
	AuditorID                *string             `json:"auditor_id"`
	AguaLeitura              decimal.NullDecimal `json:"agua_leitura"`
	EnergiaLeitura           decimal.NullDecimal `json:"energia_leitura"`
	GasLeitura               decimal.NullDecimal `json:"gas_leitura"`
	AguaLeituraBase          decimal.NullDecimal `json:"agua_leitura_base"`
	EnergiaLeituraBase       decimal.NullDecimal `json:"energia_leitura_base"`
	GasLeituraBase           decimal.NullDecimal `json:"gas_leitura_base"`
	FotoAguaURL              *string             `json:"foto_agua_url"`
	FotoEnergiaURL           *string             `json:"foto_energia_url"`
	FotoGasURL               *string             `json:"foto_gas_url"`
	FotoQuimicosURL          *string             `json:"foto_quimicos_url"`
	FotoCiclosURL            *string             `json:"foto_ciclos_url"`
	Observacoes              *string             `json:"observacoes"`
	ComprovanteFechamentoURL *string             `json:"comprovante_fechamento_url"`
	FechadoEm                *time.Time          `json:"fechado_em"`
	FechadoPor               *string             `json:"fechado_por"`
	CreatedAt                time.Time           `json:"created_at"`
	UpdatedAt                *time.Time          `json:"updated_at"`
}

// Leitura returns the current reading for a utility.
func (a *Auditoria) Leitura(u Utilidade) decimal.NullDecimal {
	switch u {
	case UtilAgua:
		return a.AguaLeitura
	case UtilEnergia:
		return a.EnergiaLeitura
	case UtilGas:
		return a.GasLeitura
	}
	return decimal.NullDecimal{}
}

// LeituraBase returns the manually entered base reading for a utility.
func (a *Auditoria) LeituraBase(u Utilidade) decimal.NullDecimal {
	switch u {
	case UtilAgua:
		return a.AguaLeituraBase
	case UtilEnergia:
		return a.EnergiaLeituraBase
	case UtilGas:
		return a.GasLeituraBase
	}
	return decimal.NullDecimal{}
}

// IsAssignedTo reports whether userID is the audit's auditor.
func (a *Auditoria) IsAssignedTo(userID string) bool {
	return a.AuditorID != nil && *a.AuditorID == userID
}

// Fotos returns the photo attachments in report order, skipping empty ones.
func (a *Auditoria) Fotos() []Anexo {
	candidates := []struct {
		titulo string
		url    *string
	}{
		{"Medidor de água", a.FotoAguaURL},
		{"Medidor de energia", a.FotoEnergiaURL},
		{"Medidor de gás", a.FotoGasURL},
		{"Produtos químicos", a.FotoQuimicosURL},
		{"Contador de ciclos", a.FotoCiclosURL},
		{"Comprovante de fechamento", a.ComprovanteFechamentoURL},
	}
	out := make([]Anexo, 0, len(candidates))
	for _, c := range candidates {
		if c.url != nil && *c.url != "" {
			out = append(out, Anexo{Titulo: c.titulo, URL: *c.url})
		}
	}
	return out
}

// Anexo is a photo or document attached to an audit.
type Anexo struct {
	Titulo string `json:"titulo"`
	URL    string `json:"url"`
}

// Ciclo counts machine cycles for one (categoria, capacidade) pair in an
// audit (table auditoria_ciclos).
type Ciclo struct {
	ID          string    `json:"id,omitempty"`
	AuditoriaID string    `json:"auditoria_id"`
	Categoria   Categoria `json:"categoria"`
	Capacidade  string    `json:"capacidade"`
	Ciclos      int       `json:"ciclos"`
}

// FechamentoItem is a free-form closing ledger entry keyed by machine tag
// (table auditoria_fechamento_itens).
type FechamentoItem struct {
	ID            string          `json:"id"`
	AuditoriaID   string          `json:"auditoria_id"`
	MaquinaTag    string          `json:"maquina_tag"`
	Ciclos        int             `json:"ciclos"`
	ValorUnitario decimal.Decimal `json:"valor_unitario"`
	ValorTotal    decimal.Decimal `json:"valor_total"`
	Observacao    string          `json:"observacao,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// StatusLog is an append-only transition record (table
// auditoria_status_log).
type StatusLog struct {
	ID          string      `json:"id,omitempty"`
	AuditoriaID string      `json:"auditoria_id"`
	De          AuditStatus `json:"de"`
	Para        AuditStatus `json:"para"`
	AtorID      string      `json:"ator_id"`
	Motivo      string      `json:"motivo,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// AuditoriaFiltro narrows GET /api/auditorias.
type AuditoriaFiltro struct {
	MesRef       string
	Status       AuditStatus
	CondominioID string
	AuditorID    string
	// IncluirSemAuditor widens an AuditorID filter to unassigned audits.
	IncluirSemAuditor bool
}

// CreateAuditoriaRequest is the body of POST /api/auditorias.
type CreateAuditoriaRequest struct {
	CondominioID string  `json:"condominio_id" validate:"required"`
	MesRef       string  `json:"mes_ref" validate:"required"`
	AuditorID    *string `json:"auditor_id,omitempty"`
}

// UpdateAuditoriaRequest is the body of PATCH /api/auditorias/{id}.
type UpdateAuditoriaRequest struct {
	AguaLeitura              *decimal.Decimal `json:"agua_leitura,omitempty"`
	EnergiaLeitura           *decimal.Decimal `json:"energia_leitura,omitempty"`
	GasLeitura               *decimal.Decimal `json:"gas_leitura,omitempty"`
	AguaLeituraBase          *decimal.Decimal `json:"agua_leitura_base,omitempty"`
	EnergiaLeituraBase       *decimal.Decimal `json:"energia_leitura_base,omitempty"`
	GasLeituraBase           *decimal.Decimal `json:"gas_leitura_base,omitempty"`
	Observacoes              *string          `json:"observacoes,omitempty"`
	ComprovanteFechamentoURL *string          `json:"comprovante_fechamento_url,omitempty" validate:"omitempty,url"`
}

// Empty reports whether the request carries no field to update.
func (r *UpdateAuditoriaRequest) Empty() bool {
	return r.AguaLeitura == nil && r.EnergiaLeitura == nil && r.GasLeitura == nil &&
		r.AguaLeituraBase == nil && r.EnergiaLeituraBase == nil && r.GasLeituraBase == nil &&
		r.Observacoes == nil && r.ComprovanteFechamentoURL == nil
}

// CicloInput is one row of PUT /api/auditorias/{id}/ciclos.
type CicloInput struct {
	Categoria  Categoria `json:"categoria" validate:"required,oneof=lavadora secadora"`
	Capacidade string    `json:"capacidade" validate:"required"`
	Ciclos     int       `json:"ciclos" validate:"gte=0"`
}

// FechamentoItemInput is the body of POST /api/auditorias/{id}/fechamento/itens.
type FechamentoItemInput struct {
	MaquinaTag    string          `json:"maquina_tag" validate:"required"`
	Ciclos        int             `json:"ciclos" validate:"gte=0"`
	ValorUnitario decimal.Decimal `json:"valor_unitario"`
	Observacao    string          `json:"observacao,omitempty"`
}

// FinalizarRequest is the optional body of POST /api/auditorias/{id}/finalizar.
type FinalizarRequest struct {
	ComprovanteFechamentoURL *string `json:"comprovante_fechamento_url,omitempty" validate:"omitempty,url"`
	Observacoes              *string `json:"observacoes,omitempty"`
}

// ParseMesRef validates a YYYY-MM-01 month key. It also accepts YYYY-MM and
// normalizes it.
func ParseMesRef(s string) (string, error) {
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Day() != 1 {
			return "", &ErrValidation{Field: "mes_ref", Message: "deve ser o primeiro dia do mês (YYYY-MM-01)"}
		}
		return t.Format("2006-01-02"), nil
	}
	return "", &ErrValidation{Field: "mes_ref", Message: fmt.Sprintf("formato inválido %q, esperado YYYY-MM-01", s)}
}

// MesRefOf returns the month key containing t.
func MesRefOf(t time.Time) string {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).Format("2006-01-02")
}

// AddMeses shifts a YYYY-MM-01 month key by n months (negative goes back).
func AddMeses(mesRef string, n int) (string, error) {
	t, err := time.Parse("2006-01-02", mesRef)
	if err != nil {
		return "", &ErrValidation{Field: "mes_ref", Message: fmt.Sprintf("formato inválido %q, esperado YYYY-MM-01", mesRef)}
	}
	return time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), nil
}

// MesAnterior reports whether anterior is the month immediately before mesRef.
func MesAnterior(mesRef, anterior string) bool {
	want, err := AddMeses(mesRef, -1)
	return err == nil && want == anterior
}
