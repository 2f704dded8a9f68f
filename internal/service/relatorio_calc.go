package service

import (
	"fmt"
	"strings"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// ============================================================
// Financial aggregation: pure, shared by every report format
// ============================================================

// RelatorioInput is everything the aggregation reads. Anterior and
// AnteriorAnterior are the audits of the same condominium for the two months
// preceding Auditoria (nil when absent). An audit from an older month is
// ignored: comparisons are strictly month over month.
type RelatorioInput struct {
	Auditoria        *domain.Auditoria
	Anterior         *domain.Auditoria
	AnteriorAnterior *domain.Auditoria
	Condominio       *domain.Condominio
	Maquinas         []domain.Maquina
	Ciclos           []domain.Ciclo
	CiclosAnteriores []domain.Ciclo
	Itens            []domain.FechamentoItem
}

// precoKey matches a cycle row to a machine. Capacity is compared trimmed and
// case-insensitively ("10kg" == "10KG ").
func precoKey(c domain.Categoria, capacidade string) string {
	return string(c) + "|" + strings.ToLower(strings.TrimSpace(capacidade))
}

func tabelaPrecos(maquinas []domain.Maquina) map[string]decimal.Decimal {
	precos := make(map[string]decimal.Decimal, len(maquinas))
	for _, m := range maquinas {
		precos[precoKey(m.Categoria, m.Capacidade)] = m.ValorCiclo
	}
	return precos
}

// AgregarCiclos prices cycle rows against the condominium machines and
// totals them per category. Rows without a matching machine are priced at
// zero and returned as warnings.
func AgregarCiclos(ciclos []domain.Ciclo, maquinas []domain.Maquina) (domain.CiclosAgregados, []string) {
	precos := tabelaPrecos(maquinas)

	agg := domain.CiclosAgregados{
		Itens:           make([]domain.CicloReceita, 0, len(ciclos)),
		ReceitaLavadora: decimal.Zero,
		ReceitaSecadora: decimal.Zero,
		ReceitaTotal:    decimal.Zero,
	}
	var avisos []string

	for _, c := range ciclos {
		preco, ok := precos[precoKey(c.Categoria, c.Capacidade)]
		if !ok {
			preco = decimal.Zero
			if c.Ciclos > 0 {
				avisos = append(avisos, fmt.Sprintf("sem máquina cadastrada para %s %s: %d ciclos sem preço", c.Categoria, c.Capacidade, c.Ciclos))
			}
		}
		receita := preco.Mul(decimal.NewFromInt(int64(c.Ciclos)))

		agg.Itens = append(agg.Itens, domain.CicloReceita{
			Categoria:  c.Categoria,
			Capacidade: c.Capacidade,
			Ciclos:     c.Ciclos,
			ValorCiclo: preco,
			Receita:    domain.Money(receita),
			SemPreco:   !ok,
		})

		switch c.Categoria {
		case domain.CategoriaLavadora:
			agg.CiclosLavadora += c.Ciclos
			agg.ReceitaLavadora = agg.ReceitaLavadora.Add(receita)
		case domain.CategoriaSecadora:
			agg.CiclosSecadora += c.Ciclos
			agg.ReceitaSecadora = agg.ReceitaSecadora.Add(receita)
		}
		agg.ReceitaTotal = agg.ReceitaTotal.Add(receita)
	}

	agg.ReceitaLavadora = domain.Money(agg.ReceitaLavadora)
	agg.ReceitaSecadora = domain.Money(agg.ReceitaSecadora)
	agg.ReceitaTotal = domain.Money(agg.ReceitaTotal)
	return agg, avisos
}

// baseline picks the consumption baseline of a utility: the prior audit
// reading, else the manual base reading, else null.
func baseline(atual, anterior *domain.Auditoria, u domain.Utilidade) (decimal.NullDecimal, string) {
	if anterior != nil {
		if l := anterior.Leitura(u); l.Valid {
			return l, domain.OrigemMesAnterior
		}
	}
	if b := atual.LeituraBase(u); b.Valid {
		return b, domain.OrigemManual
	}
	return decimal.NullDecimal{}, ""
}

// consumo returns leitura − base, null when either side is null.
func consumo(leitura, base decimal.NullDecimal) decimal.NullDecimal {
	if !leitura.Valid || !base.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(leitura.Decimal.Sub(base.Decimal))
}

// repasse returns max(consumo, 0) × tarifa, null when consumption is null.
// Gas is zero for condominiums without gas.
func repasse(c decimal.NullDecimal, tarifa decimal.Decimal, u domain.Utilidade, cond *domain.Condominio) decimal.NullDecimal {
	if !c.Valid {
		return decimal.NullDecimal{}
	}
	if u == domain.UtilGas && !cond.PossuiGas {
		return decimal.NewNullDecimal(decimal.Zero)
	}
	return decimal.NewNullDecimal(domain.Money(decimal.Max(c.Decimal, decimal.Zero).Mul(tarifa)))
}

func tarifa(cond *domain.Condominio, u domain.Utilidade) decimal.Decimal {
	switch u {
	case domain.UtilAgua:
		return cond.TarifaAgua
	case domain.UtilEnergia:
		return cond.TarifaEnergia
	case domain.UtilGas:
		return cond.TarifaGas
	}
	return decimal.Zero
}

// mesesConsecutivos drops prior audits that are not from the immediately
// preceding month, so a gap never passes as a month-over-month baseline.
func mesesConsecutivos(in RelatorioInput) (RelatorioInput, []string) {
	var avisos []string
	if in.Anterior != nil && !domain.MesAnterior(in.Auditoria.MesRef, in.Anterior.MesRef) {
		avisos = append(avisos, fmt.Sprintf("auditoria de %s ignorada como base: não é o mês anterior", in.Anterior.MesRef))
		in.Anterior, in.AnteriorAnterior, in.CiclosAnteriores = nil, nil, nil
	}
	if in.Anterior != nil && in.AnteriorAnterior != nil && !domain.MesAnterior(in.Anterior.MesRef, in.AnteriorAnterior.MesRef) {
		in.AnteriorAnterior = nil
	}
	return in, avisos
}

// CalcularRelatorio computes the closing report of one audit.
func CalcularRelatorio(in RelatorioInput) *domain.Relatorio {
	in, avisosBase := mesesConsecutivos(in)
	a, cond := in.Auditoria, in.Condominio

	ciclos, avisos := AgregarCiclos(in.Ciclos, in.Maquinas)
	avisos = append(avisos, avisosBase...)
	cashback := domain.Money(domain.Percent(ciclos.ReceitaTotal, cond.CashbackPercent))

	// Prior period figures, priced with the current tariffs and machines.
	var receitaAnterior, cashbackAnterior, repasseAnterior decimal.NullDecimal
	if in.Anterior != nil {
		agg, _ := AgregarCiclos(in.CiclosAnteriores, in.Maquinas)
		receitaAnterior = decimal.NewNullDecimal(agg.ReceitaTotal)
		cashbackAnterior = decimal.NewNullDecimal(domain.Money(domain.Percent(agg.ReceitaTotal, cond.CashbackPercent)))
	}

	consumos := make([]domain.ConsumoUtilidade, 0, len(domain.Utilidades))
	repasseTotal := decimal.Zero
	repasseAnteriorTotal := decimal.Zero
	repasseAnteriorValido := false

	for _, u := range domain.Utilidades {
		leitura := a.Leitura(u)
		base, origem := baseline(a, in.Anterior, u)
		c := consumo(leitura, base)
		t := tarifa(cond, u)
		r := repasse(c, t, u, cond)

		item := domain.ConsumoUtilidade{
			Utilidade:  u,
			Leitura:    leitura,
			Base:       base,
			OrigemBase: origem,
			Consumo:    c,
			Tarifa:     t,
			Repasse:    r,
		}

		if in.Anterior != nil {
			baseAnterior, _ := baseline(in.Anterior, in.AnteriorAnterior, u)
			item.ConsumoAnterior = consumo(in.Anterior.Leitura(u), baseAnterior)
			rAnterior := repasse(item.ConsumoAnterior, t, u, cond)
			item.VariacaoConsumoPct = domain.Variation(c, item.ConsumoAnterior)
			item.VariacaoRepassePct = domain.Variation(r, rAnterior)
			if rAnterior.Valid {
				repasseAnteriorTotal = repasseAnteriorTotal.Add(rAnterior.Decimal)
				repasseAnteriorValido = true
			}
		}

		if r.Valid {
			repasseTotal = repasseTotal.Add(r.Decimal)
		} else if leitura.Valid {
			avisos = append(avisos, fmt.Sprintf("%s: leitura sem base de comparação, repasse não calculado", u))
		}
		consumos = append(consumos, item)
	}

	if repasseAnteriorValido {
		repasseAnterior = decimal.NewNullDecimal(repasseAnteriorTotal)
	}

	itensTotal := decimal.Zero
	for _, it := range in.Itens {
		itensTotal = itensTotal.Add(it.ValorTotal)
	}
	itens := in.Itens
	if itens == nil {
		itens = []domain.FechamentoItem{}
	}
	if avisos == nil {
		avisos = []string{}
	}

	rel := &domain.Relatorio{
		Auditoria: domain.RelatorioAuditoria{
			ID:          a.ID,
			MesRef:      a.MesRef,
			Status:      a.Status,
			AuditorID:   a.AuditorID,
			Observacoes: a.Observacoes,
		},
		Condominio: domain.RelatorioCondominio{
			ID:              cond.ID,
			Nome:            cond.Nome,
			Endereco:        cond.Endereco,
			TipoPagamento:   cond.TipoPagamento,
			Banco:           cond.Banco,
			Agencia:         cond.Agencia,
			Conta:           cond.Conta,
			PixChave:        cond.PixChave,
			Favorecido:      cond.Favorecido,
			CashbackPercent: cond.CashbackPercent,
		},
		Ciclos: ciclos,
		Financeiro: domain.ResumoFinanceiro{
			ReceitaTotal:        ciclos.ReceitaTotal,
			Cashback:            cashback,
			RepasseTotal:        domain.Money(repasseTotal),
			TotalAPagar:         domain.Money(cashback.Add(repasseTotal)),
			VariacaoReceitaPct:  domain.Variation(decimal.NewNullDecimal(ciclos.ReceitaTotal), receitaAnterior),
			VariacaoCashbackPct: domain.Variation(decimal.NewNullDecimal(cashback), cashbackAnterior),
			VariacaoRepassePct:  domain.Variation(decimal.NewNullDecimal(repasseTotal), repasseAnterior),
		},
		Consumos:             consumos,
		ItensFechamento:      itens,
		TotalItensFechamento: domain.Money(itensTotal),
		Anexos:               a.Fotos(),
		Avisos:               avisos,
	}
	if a.FechadoEm != nil {
		s := a.FechadoEm.Format("2006-01-02T15:04:05Z07:00")
		rel.Auditoria.FechadoEm = &s
	}
	if in.Anterior != nil {
		m := in.Anterior.MesRef
		rel.Auditoria.MesRefAnterior = &m
	}
	return rel
}
