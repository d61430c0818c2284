package report

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func TestFormatMoney(t *testing.T) {
	p := message.NewPrinter(language.BrazilianPortuguese)
	cases := map[string]struct {
		amount string
		code   string
	}{
		"R$ 1.234,56": {"1234.56", "BRL"},
		"-R$ 10,00":   {"-10", "BRL"},
		"USD 0,50":    {"0.5", "USD"},
		"R$ 99,90":    {"99.9", "???"},
	}
	for want, tc := range cases {
		require.Equal(t, want, FormatMoney(p, decimal.RequireFromString(tc.amount), tc.code))
	}
}

func TestRendererHTML(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	html, err := r.HTML(Build(TypeFinancial, sampleInput()))
	require.NoError(t, err)
	out := string(html)
	require.Contains(t, out, "Relatório Financeiro Geral")
	require.Contains(t, out, "Gerado em: 31/03/2024 às 18:30")
	require.Contains(t, out, "R$ 2.000,00")
	require.Contains(t, out, "-R$ 300,00")
	require.Contains(t, out, "Nenhum filtro específico aplicado")

	html, err = r.HTML(Build(TypeExpenses, Input{GeneratedBy: "<script>"}))
	require.NoError(t, err)
	require.Contains(t, string(html), "Nenhum registro no período.")
	require.NotContains(t, string(html), "<script>")
}
