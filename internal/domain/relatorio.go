package domain

import "github.com/shopspring/decimal"

// ============================================================
// Financial report: shared by the JSON view and the PDF/XLSX exporters
// ============================================================

// Relatorio is the normalized closing report of one audit.
type Relatorio struct {
	Auditoria  RelatorioAuditoria  `json:"auditoria"`
	Condominio RelatorioCondominio `json:"condominio"`

	Ciclos     CiclosAgregados    `json:"ciclos"`
	Financeiro ResumoFinanceiro   `json:"financeiro"`
	Consumos   []ConsumoUtilidade `json:"consumos"`

	ItensFechamento      []FechamentoItem `json:"itens_fechamento"`
	TotalItensFechamento decimal.Decimal  `json:"total_itens_fechamento"`

	Anexos []Anexo  `json:"anexos"`
	Avisos []string `json:"avisos"`
}

// RelatorioAuditoria is the audit header of a report.
type RelatorioAuditoria struct {
	ID          string      `json:"id"`
	MesRef      string      `json:"mes_ref"`
	Status      AuditStatus `json:"status"`
	AuditorID   *string     `json:"auditor_id"`
	Observacoes *string     `json:"observacoes"`
	FechadoEm   *string     `json:"fechado_em"`
	// MesRefAnterior is the month used for comparisons, when a prior audit
	// exists.
	MesRefAnterior *string `json:"mes_ref_anterior"`
}

// RelatorioCondominio carries the condominium data printed on the report.
type RelatorioCondominio struct {
	ID              string          `json:"id"`
	Nome            string          `json:"nome"`
	Endereco        string          `json:"endereco,omitempty"`
	TipoPagamento   TipoPagamento   `json:"tipo_pagamento"`
	Banco           string          `json:"banco,omitempty"`
	Agencia         string          `json:"agencia,omitempty"`
	Conta           string          `json:"conta,omitempty"`
	PixChave        string          `json:"pix_chave,omitempty"`
	Favorecido      string          `json:"favorecido,omitempty"`
	CashbackPercent decimal.Decimal `json:"cashback_percent"`
}

// CicloReceita is one cycle row priced against its machine.
type CicloReceita struct {
	Categoria  Categoria       `json:"categoria"`
	Capacidade string          `json:"capacidade"`
	Ciclos     int             `json:"ciclos"`
	ValorCiclo decimal.Decimal `json:"valor_ciclo"`
	Receita    decimal.Decimal `json:"receita"`
	// SemPreco marks rows with no matching machine (priced at zero).
	SemPreco bool `json:"sem_preco,omitempty"`
}

// CiclosAgregados is the cycle aggregation of an audit. It is returned as is
// by GET /api/auditorias/{id}/ciclos.
type CiclosAgregados struct {
	Itens           []CicloReceita  `json:"itens"`
	CiclosLavadora  int             `json:"ciclos_lavadora"`
	CiclosSecadora  int             `json:"ciclos_secadora"`
	ReceitaLavadora decimal.Decimal `json:"receita_lavadora"`
	ReceitaSecadora decimal.Decimal `json:"receita_secadora"`
	ReceitaTotal    decimal.Decimal `json:"receita_total"`
}

// ResumoFinanceiro holds the closing totals.
type ResumoFinanceiro struct {
	ReceitaTotal decimal.Decimal `json:"receita_total"`
	Cashback     decimal.Decimal `json:"cashback"`
	RepasseTotal decimal.Decimal `json:"repasse_total"`
	TotalAPagar  decimal.Decimal `json:"total_a_pagar"`

	VariacaoReceitaPct  decimal.NullDecimal `json:"variacao_receita_pct"`
	VariacaoCashbackPct decimal.NullDecimal `json:"variacao_cashback_pct"`
	VariacaoRepassePct  decimal.NullDecimal `json:"variacao_repasse_pct"`
}

// ConsumoUtilidade is the metered consumption and repasse of one utility.
type ConsumoUtilidade struct {
	Utilidade Utilidade           `json:"utilidade"`
	Leitura   decimal.NullDecimal `json:"leitura"`
	Base      decimal.NullDecimal `json:"base"`
	// OrigemBase is "mes_anterior", "manual" or "" when there is no baseline.
	OrigemBase string              `json:"origem_base"`
	Consumo    decimal.NullDecimal `json:"consumo"`
	Tarifa     decimal.Decimal     `json:"tarifa"`
	Repasse    decimal.NullDecimal `json:"repasse"`

	ConsumoAnterior    decimal.NullDecimal `json:"consumo_anterior"`
	VariacaoConsumoPct decimal.NullDecimal `json:"variacao_consumo_pct"`
	VariacaoRepassePct decimal.NullDecimal `json:"variacao_repasse_pct"`
}

const (
	OrigemMesAnterior = "mes_anterior"
	OrigemManual      = "manual"
)

// RelatorioMensal consolidates the reports of one reference month.
type RelatorioMensal struct {
	MesRef        string          `json:"mes_ref"`
	Relatorios    []Relatorio     `json:"relatorios"`
	ReceitaTotal  decimal.Decimal `json:"receita_total"`
	CashbackTotal decimal.Decimal `json:"cashback_total"`
	RepasseTotal  decimal.Decimal `json:"repasse_total"`
	TotalAPagar   decimal.Decimal `json:"total_a_pagar"`
	Falhas        []string        `json:"falhas,omitempty"`
}
