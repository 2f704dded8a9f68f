package export_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/export"
	"github.com/metalav/auditorias-bfa-go/internal/infra/resilience"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type captureRenderer struct {
	html string
}

func (r *captureRenderer) RenderHTML(_ context.Context, html string) ([]byte, error) {
	r.html = html
	return []byte("%PDF-1.7"), nil
}

type mapFetcher struct {
	mu    sync.Mutex
	files map[string]fetched
	calls int
}

type fetched struct {
	data        []byte
	contentType string
}

func (f *mapFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	got, ok := f.files[url]
	if !ok {
		return nil, "", errors.New("404")
	}
	return got.data, got.contentType, nil
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func base64Reader(s string) io.Reader {
	return base64.NewDecoder(base64.StdEncoding, strings.NewReader(s))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleRelatorio() *domain.Relatorio {
	return &domain.Relatorio{
		Auditoria: domain.RelatorioAuditoria{ID: "a1", MesRef: "2025-03-01", Status: domain.StatusFinal},
		Condominio: domain.RelatorioCondominio{
			ID:              "c1",
			Nome:            "Residencial Aurora",
			TipoPagamento:   domain.PagamentoDireto,
			PixChave:        "aurora@pix.test",
			Favorecido:      "Condomínio Aurora",
			CashbackPercent: d("20"),
		},
		Ciclos: domain.CiclosAgregados{
			Itens: []domain.CicloReceita{
				{Categoria: domain.CategoriaLavadora, Capacidade: "10kg", Ciclos: 10, ValorCiclo: d("16.50"), Receita: d("165.00")},
				{Categoria: domain.CategoriaSecadora, Capacidade: "10kg", Ciclos: 5, ValorCiclo: d("8.00"), Receita: d("40.00")},
			},
			CiclosLavadora: 10,
			CiclosSecadora: 5,
			ReceitaTotal:   d("205.00"),
		},
		Financeiro: domain.ResumoFinanceiro{
			ReceitaTotal:       d("205.00"),
			Cashback:           d("41.00"),
			RepasseTotal:       d("500.00"),
			TotalAPagar:        d("541.00"),
			VariacaoReceitaPct: decimal.NewNullDecimal(d("24.24")),
		},
		Consumos: []domain.ConsumoUtilidade{
			{Utilidade: domain.UtilAgua, Leitura: decimal.NewNullDecimal(d("150")), Consumo: decimal.NewNullDecimal(d("50")), Tarifa: d("10"), Repasse: decimal.NewNullDecimal(d("500"))},
		},
		ItensFechamento: []domain.FechamentoItem{
			{MaquinaTag: "L-01", Ciclos: 3, ValorUnitario: d("16.50"), ValorTotal: d("49.50")},
		},
		TotalItensFechamento: d("49.50"),
		Avisos:               []string{"sem preço para secadora 15kg"},
	}
}

func newPDF(t *testing.T, fetcher *mapFetcher) (*export.PDF, *captureRenderer) {
	t.Helper()
	r := &captureRenderer{}
	p, err := export.NewPDF(r, fetcher, resilience.NewBulkhead(2), zap.NewNop())
	require.NoError(t, err)
	return p, r
}

func TestNewPDF_RequiresRenderer(t *testing.T) {
	_, err := export.NewPDF(nil, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestPDF_AuditoriaRendersReport(t *testing.T) {
	p, r := newPDF(t, nil)

	out, err := p.Auditoria(context.Background(), sampleRelatorio())
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), out)

	assert.Contains(t, r.html, "Residencial Aurora")
	assert.Contains(t, r.html, "03/2025")
	assert.Contains(t, r.html, "205,00")
	assert.Contains(t, r.html, "541,00")
	assert.Contains(t, r.html, "+24,2%")
	assert.Contains(t, r.html, "L-01")
	assert.Contains(t, r.html, "aurora@pix.test")
	assert.Contains(t, r.html, "sem preço para secadora 15kg")
}

func TestPDF_EmbedsOnlyDecodableImages(t *testing.T) {
	fetcher := &mapFetcher{files: map[string]fetched{
		"https://cdn.test/agua.png":  {data: pngImage(t, 40, 30), contentType: "image/png"},
		"https://cdn.test/nota.pdf":  {data: []byte("%PDF-1.4"), contentType: "application/pdf"},
		"https://cdn.test/falsa.png": {data: []byte("not a png"), contentType: "image/png"},
	}}
	p, _ := newPDF(t, fetcher)

	rel := sampleRelatorio()
	rel.Anexos = []domain.Anexo{
		{Titulo: "Medidor de água", URL: "https://cdn.test/agua.png"},
		{Titulo: "Comprovante", URL: "https://cdn.test/nota.pdf"},
		{Titulo: "Quebrada", URL: "https://cdn.test/falsa.png"},
		{Titulo: "Sumida", URL: "https://cdn.test/404.png"},
	}

	html, err := p.AuditoriaHTML(context.Background(), rel)
	require.NoError(t, err)
	assert.Equal(t, 4, fetcher.calls)
	assert.Equal(t, 1, strings.Count(html, "data:image/jpeg;base64,"))
	assert.Contains(t, html, "Medidor de água")
	assert.NotContains(t, html, "Quebrada")
}

func TestPDF_Mensal(t *testing.T) {
	p, r := newPDF(t, nil)
	rel := sampleRelatorio()

	_, err := p.Mensal(context.Background(), &domain.RelatorioMensal{
		MesRef:        "2025-03-01",
		Relatorios:    []domain.Relatorio{*rel},
		ReceitaTotal:  d("205"),
		CashbackTotal: d("41"),
		RepasseTotal:  d("500"),
		TotalAPagar:   d("541"),
		Falhas:        []string{"a9: condomínio não encontrado"},
	})
	require.NoError(t, err)
	assert.Contains(t, r.html, "Residencial Aurora")
	assert.Contains(t, r.html, "541,00")
}

func TestAuditoriaXLSX(t *testing.T) {
	data, err := export.AuditoriaXLSX(sampleRelatorio())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Resumo", "Ciclos", "Consumos", "Fechamento"}, f.GetSheetList())

	nome, err := f.GetCellValue("Resumo", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Residencial Aurora", nome)

	label, _ := f.GetCellValue("Resumo", "A8")
	assert.Equal(t, "Receita total", label)
	receita, _ := f.GetCellValue("Resumo", "B8", excelize.Options{RawCellValue: true})
	assert.Equal(t, "205", receita)

	rows, err := f.GetRows("Ciclos")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "15", rows[3][2])

	tag, _ := f.GetCellValue("Fechamento", "A2")
	assert.Equal(t, "L-01", tag)
}

func TestAuditoriaXLSX_NoClosingItems(t *testing.T) {
	rel := sampleRelatorio()
	rel.ItensFechamento = nil

	data, err := export.AuditoriaXLSX(rel)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Resumo", "Ciclos", "Consumos"}, f.GetSheetList())
}

func TestMensalXLSX(t *testing.T) {
	rel := sampleRelatorio()
	data, err := export.MensalXLSX(&domain.RelatorioMensal{
		MesRef:        "2025-03-01",
		Relatorios:    []domain.Relatorio{*rel},
		ReceitaTotal:  d("205"),
		CashbackTotal: d("41"),
		RepasseTotal:  d("500"),
		TotalAPagar:   d("541"),
		Falhas:        []string{"a9: condomínio não encontrado"},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Mensal")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Condomínio", rows[0][0])
	assert.Equal(t, "Residencial Aurora", rows[1][0])
	assert.Equal(t, "Total", rows[2][0])
	assert.Equal(t, "a9: condomínio não encontrado", rows[3][0])

	agua, _ := f.GetCellValue("Mensal", "F2", excelize.Options{RawCellValue: true})
	assert.Equal(t, "500", agua)

	// Total row: each utility column sums its own repasse.
	raw := func(ref string) string {
		v, err := f.GetCellValue("Mensal", ref, excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "500", raw("F3"))
	assert.Equal(t, "0", raw("G3"))
	assert.Equal(t, "0", raw("H3"))
	assert.Equal(t, "541", raw("I3"))
}

func TestMensalXLSX_SumsRepassePerUtility(t *testing.T) {
	aurora := sampleRelatorio()
	boleto := sampleRelatorio()
	boleto.Condominio.Nome = "Edifício Boleto"
	boleto.Consumos = []domain.ConsumoUtilidade{
		{Utilidade: domain.UtilAgua, Repasse: decimal.NewNullDecimal(d("120"))},
		{Utilidade: domain.UtilEnergia, Repasse: decimal.NewNullDecimal(d("80"))},
		{Utilidade: domain.UtilGas, Repasse: decimal.NewNullDecimal(d("30"))},
	}

	data, err := export.MensalXLSX(&domain.RelatorioMensal{
		MesRef:       "2025-03-01",
		Relatorios:   []domain.Relatorio{*aurora, *boleto},
		RepasseTotal: d("730"),
		TotalAPagar:  d("812"),
	})
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	want := map[string]string{"F4": "620", "G4": "80", "H4": "30", "I4": "812"}
	for ref, v := range want {
		got, err := f.GetCellValue("Mensal", ref, excelize.Options{RawCellValue: true})
		require.NoError(t, err)
		assert.Equal(t, v, got, ref)
	}
}

func TestImageDataURI_Downscales(t *testing.T) {
	uri, err := export.ImageDataURI(pngImage(t, 2560, 1000))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))

	raw := strings.TrimPrefix(uri, "data:image/jpeg;base64,")
	img, err := imaging.Decode(base64Reader(raw))
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())
	assert.Equal(t, 500, img.Bounds().Dy())
}

func TestImageDataURI_RejectsGarbage(t *testing.T) {
	_, err := export.ImageDataURI([]byte("plain text"))
	assert.Error(t, err)
}

func TestIsImage(t *testing.T) {
	assert.True(t, export.IsImage("image/png"))
	assert.True(t, export.IsImage(" Image/JPEG "))
	assert.False(t, export.IsImage("application/pdf"))
	assert.False(t, export.IsImage(""))
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/foto":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngImage(t, 2, 2))
		case "/sem-tipo":
			w.Write([]byte("%PDF-1.7\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	f := export.NewHTTPFetcher(srv.Client())
	ctx := context.Background()

	data, ct, err := f.Fetch(ctx, srv.URL+"/foto")
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.NotEmpty(t, data)

	_, ct, err = f.Fetch(ctx, srv.URL+"/sem-tipo")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ct)

	_, _, err = f.Fetch(ctx, srv.URL+"/nada")
	assert.Error(t, err)
}

func TestGotenberg_RenderHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"up"}`))
			return
		}
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "8.27", r.FormValue("paperWidth"))
		assert.Equal(t, "11.7", r.FormValue("paperHeight"))
		assert.Equal(t, "true", r.FormValue("printBackground"))

		file, header, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "index.html", header.Filename)
		body, _ := io.ReadAll(file)
		assert.Equal(t, "<h1>oi</h1>", string(body))

		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()
	g := export.NewGotenberg(srv.URL, srv.Client())

	require.NoError(t, g.Ping(context.Background()))
	out, err := g.RenderHTML(context.Background(), "<h1>oi</h1>")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), out)
}

func TestGotenberg_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("chromium down"))
	}))
	defer srv.Close()
	g := export.NewGotenberg(srv.URL, srv.Client())

	assert.Error(t, g.Ping(context.Background()))
	_, err := g.RenderHTML(context.Background(), "<p/>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
