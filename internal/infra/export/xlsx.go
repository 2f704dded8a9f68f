package export

import (
	"fmt"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	currencyFormat = `"R$" #,##0.00`
	percentFormat  = `0.00%`
	numberFormat   = `#,##0.00`
)

// styles holds the cell style ids of one workbook.
type styles struct {
	header   int
	currency int
	percent  int
	number   int
	total    int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	currency := currencyFormat
	percent := percentFormat
	number := numberFormat

	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F2937"}, Pattern: 1},
	}); err != nil {
		return s, err
	}
	if s.currency, err = f.NewStyle(&excelize.Style{CustomNumFmt: &currency}); err != nil {
		return s, err
	}
	if s.percent, err = f.NewStyle(&excelize.Style{CustomNumFmt: &percent}); err != nil {
		return s, err
	}
	if s.number, err = f.NewStyle(&excelize.Style{CustomNumFmt: &number}); err != nil {
		return s, err
	}
	if s.total, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		CustomNumFmt: &currency,
	}); err != nil {
		return s, err
	}
	return s, nil
}

// cellKind selects how a value is written and styled.
type cellKind int

const (
	plain cellKind = iota
	currency
	percent
	number
	total
)

type cell struct {
	value any
	kind  cellKind
}

func txt(v any) cell { return cell{value: v} }

func brl(d decimal.Decimal) cell { return cell{value: d.InexactFloat64(), kind: currency} }

func brlTotal(d decimal.Decimal) cell { return cell{value: d.InexactFloat64(), kind: total} }

// brlNull writes an empty cell for null values.
func brlNull(d decimal.NullDecimal) cell {
	if !d.Valid {
		return cell{}
	}
	return brl(d.Decimal)
}

func numNull(d decimal.NullDecimal) cell {
	if !d.Valid {
		return cell{}
	}
	return cell{value: d.Decimal.InexactFloat64(), kind: number}
}

// pctNull converts a percentage (12.5) into the spreadsheet fraction (0.125).
func pctNull(d decimal.NullDecimal) cell {
	if !d.Valid {
		return cell{}
	}
	return cell{value: d.Decimal.Div(decimal.NewFromInt(100)).InexactFloat64(), kind: percent}
}

func pct(d decimal.Decimal) cell {
	return pctNull(decimal.NewNullDecimal(d))
}

// sheet appends rows to one worksheet.
type sheet struct {
	f      *excelize.File
	name   string
	styles styles
	row    int
}

func (s *sheet) header(titles ...string) error {
	s.row++
	for i, t := range titles {
		ref, err := excelize.CoordinatesToCellName(i+1, s.row)
		if err != nil {
			return err
		}
		if err := s.f.SetCellValue(s.name, ref, t); err != nil {
			return err
		}
		if err := s.f.SetCellStyle(s.name, ref, ref, s.styles.header); err != nil {
			return err
		}
	}
	return nil
}

func (s *sheet) append(cells ...cell) error {
	s.row++
	for i, c := range cells {
		if c.value == nil {
			continue
		}
		ref, err := excelize.CoordinatesToCellName(i+1, s.row)
		if err != nil {
			return err
		}
		if err := s.f.SetCellValue(s.name, ref, c.value); err != nil {
			return err
		}
		style := 0
		switch c.kind {
		case currency:
			style = s.styles.currency
		case percent:
			style = s.styles.percent
		case number:
			style = s.styles.number
		case total:
			style = s.styles.total
		}
		if style != 0 {
			if err := s.f.SetCellStyle(s.name, ref, ref, style); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *sheet) blank() { s.row++ }

func newWorkbook(first string) (*excelize.File, styles, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", first); err != nil {
		return nil, styles{}, err
	}
	st, err := newStyles(f)
	if err != nil {
		return nil, styles{}, err
	}
	return f, st, nil
}

func addSheet(f *excelize.File, st styles, name string) (*sheet, error) {
	if _, err := f.NewSheet(name); err != nil {
		return nil, err
	}
	return &sheet{f: f, name: name, styles: st}, nil
}

func toBytes(f *excelize.File) ([]byte, error) {
	defer func() { _ = f.Close() }()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// AuditoriaXLSX builds the workbook of one audit report: summary, cycles,
// consumption and closing items.
func AuditoriaXLSX(rel *domain.Relatorio) ([]byte, error) {
	f, st, err := newWorkbook("Resumo")
	if err != nil {
		return nil, err
	}

	resumo := &sheet{f: f, name: "Resumo", styles: st}
	rows := [][]cell{
		{txt("Condomínio"), txt(rel.Condominio.Nome)},
		{txt("Mês de referência"), txt(rel.Auditoria.MesRef)},
		{txt("Status"), txt(string(rel.Auditoria.Status))},
		{txt("Tipo de pagamento"), txt(string(rel.Condominio.TipoPagamento))},
		{txt("Cashback %"), pct(rel.Condominio.CashbackPercent)},
	}
	for _, r := range rows {
		if err := resumo.append(r...); err != nil {
			return nil, err
		}
	}
	resumo.blank()
	if err := resumo.header("Item", "Valor", "Variação"); err != nil {
		return nil, err
	}
	fin := rel.Financeiro
	for _, r := range [][]cell{
		{txt("Receita total"), brl(fin.ReceitaTotal), pctNull(fin.VariacaoReceitaPct)},
		{txt("Cashback"), brl(fin.Cashback), pctNull(fin.VariacaoCashbackPct)},
		{txt("Repasse"), brl(fin.RepasseTotal), pctNull(fin.VariacaoRepassePct)},
		{txt("Total a pagar"), brlTotal(fin.TotalAPagar)},
	} {
		if err := resumo.append(r...); err != nil {
			return nil, err
		}
	}
	for _, aviso := range rel.Avisos {
		if err := resumo.append(txt(aviso)); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth("Resumo", "A", "A", 28)
	_ = f.SetColWidth("Resumo", "B", "C", 18)

	ciclos, err := addSheet(f, st, "Ciclos")
	if err != nil {
		return nil, err
	}
	if err := ciclos.header("Categoria", "Capacidade", "Ciclos", "Valor/ciclo", "Receita"); err != nil {
		return nil, err
	}
	for _, it := range rel.Ciclos.Itens {
		if err := ciclos.append(txt(string(it.Categoria)), txt(it.Capacidade), txt(it.Ciclos), brl(it.ValorCiclo), brl(it.Receita)); err != nil {
			return nil, err
		}
	}
	if err := ciclos.append(txt("Total"), cell{}, txt(rel.Ciclos.CiclosLavadora+rel.Ciclos.CiclosSecadora), cell{}, brlTotal(rel.Ciclos.ReceitaTotal)); err != nil {
		return nil, err
	}

	consumos, err := addSheet(f, st, "Consumos")
	if err != nil {
		return nil, err
	}
	if err := consumos.header("Utilidade", "Leitura", "Base", "Origem base", "Consumo", "Tarifa", "Repasse", "Consumo anterior", "Var. consumo", "Var. repasse"); err != nil {
		return nil, err
	}
	for _, c := range rel.Consumos {
		if err := consumos.append(
			txt(string(c.Utilidade)), numNull(c.Leitura), numNull(c.Base), txt(c.OrigemBase),
			numNull(c.Consumo), brl(c.Tarifa), brlNull(c.Repasse), numNull(c.ConsumoAnterior),
			pctNull(c.VariacaoConsumoPct), pctNull(c.VariacaoRepassePct),
		); err != nil {
			return nil, err
		}
	}

	if len(rel.ItensFechamento) > 0 {
		itens, err := addSheet(f, st, "Fechamento")
		if err != nil {
			return nil, err
		}
		if err := itens.header("Máquina", "Ciclos", "Valor unitário", "Total", "Observação"); err != nil {
			return nil, err
		}
		for _, it := range rel.ItensFechamento {
			if err := itens.append(txt(it.MaquinaTag), txt(it.Ciclos), brl(it.ValorUnitario), brl(it.ValorTotal), txt(it.Observacao)); err != nil {
				return nil, err
			}
		}
		if err := itens.append(txt("Total"), cell{}, cell{}, brlTotal(rel.TotalItensFechamento)); err != nil {
			return nil, err
		}
	}

	return toBytes(f)
}

// MensalXLSX builds the consolidated monthly workbook: one row per audit.
func MensalXLSX(m *domain.RelatorioMensal) ([]byte, error) {
	f, st, err := newWorkbook("Mensal")
	if err != nil {
		return nil, err
	}
	s := &sheet{f: f, name: "Mensal", styles: st}

	if err := s.header("Condomínio", "Status", "Receita", "Cashback %", "Cashback",
		"Repasse água", "Repasse energia", "Repasse gás", "Total a pagar", "Pagamento", "Favorecido", "Chave PIX"); err != nil {
		return nil, err
	}
	totalUtil := map[domain.Utilidade]decimal.Decimal{}
	for _, r := range m.Relatorios {
		repasse := map[domain.Utilidade]decimal.NullDecimal{}
		for _, c := range r.Consumos {
			repasse[c.Utilidade] = c.Repasse
			if c.Repasse.Valid {
				totalUtil[c.Utilidade] = totalUtil[c.Utilidade].Add(c.Repasse.Decimal)
			}
		}
		if err := s.append(
			txt(r.Condominio.Nome), txt(string(r.Auditoria.Status)),
			brl(r.Financeiro.ReceitaTotal), pct(r.Condominio.CashbackPercent), brl(r.Financeiro.Cashback),
			brlNull(repasse[domain.UtilAgua]), brlNull(repasse[domain.UtilEnergia]), brlNull(repasse[domain.UtilGas]),
			brl(r.Financeiro.TotalAPagar), txt(string(r.Condominio.TipoPagamento)),
			txt(r.Condominio.Favorecido), txt(r.Condominio.PixChave),
		); err != nil {
			return nil, err
		}
	}
	if err := s.append(
		txt("Total"), cell{}, brlTotal(m.ReceitaTotal), cell{}, brlTotal(m.CashbackTotal),
		brlTotal(totalUtil[domain.UtilAgua]), brlTotal(totalUtil[domain.UtilEnergia]), brlTotal(totalUtil[domain.UtilGas]),
		brlTotal(m.TotalAPagar),
	); err != nil {
		return nil, err
	}
	for _, falha := range m.Falhas {
		if err := s.append(txt(falha)); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth("Mensal", "A", "A", 32)
	_ = f.SetColWidth("Mensal", "B", "L", 16)

	return toBytes(f)
}
