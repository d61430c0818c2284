package report

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/report.html
var templateFS embed.FS

// Renderer turns documents into HTML.
type Renderer struct {
	tmpl     *template.Template
	location *time.Location
}

// NewRenderer parses the report template. Dates print in loc; nil means UTC.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{location: loc}
	printer := message.NewPrinter(language.BrazilianPortuguese)
	tmpl, err := template.New("report.html").Funcs(template.FuncMap{
		"money": func(amount decimal.Decimal, code string) string {
			return FormatMoney(printer, amount, code)
		},
		"summaryValue": func(s Summary, v decimal.Decimal) string {
			if s.Money {
				return FormatMoney(printer, v, "BRL")
			}
			return printer.Sprintf("%.2f", v.InexactFloat64())
		},
		"datetime": func(t time.Time) string {
			return t.In(r.location).Format("02/01/2006 às 15:04")
		},
		"period": func(t *time.Time, fallback string) string {
			if t == nil {
				return fallback
			}
			return t.Format(dateLayout)
		},
	}).ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return nil, err
	}
	r.tmpl = tmpl
	return r, nil
}

// HTML renders doc.
func (r *Renderer) HTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatMoney prints amount with the currency symbol and pt-BR separators.
// Unknown codes fall back to BRL.
func FormatMoney(p *message.Printer, amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.BRL
	}
	symbol := unit.String()
	if unit == currency.BRL {
		symbol = "R$"
	}
	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return sign + symbol + " " + p.Sprintf("%.2f", amount.Abs().InexactFloat64())
}
