package nfe

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atriumcode/controlfinance/internal/models"
)

// accessKeyPrefix is the fixed prefix of the infNFe Id attribute. The
// 44-digit access key follows it.
const accessKeyPrefix = "NFe"

// Invoice is the canonical result of parsing one NFe XML document.
type Invoice struct {
	Document     models.FiscalDocument
	Counterparty *models.Counterparty
	Items        []models.LineItem
}

type procXML struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     nfeXML   `xml:"NFe"`
}

type nfeXML struct {
	XMLName xml.Name  `xml:"NFe"`
	InfNFe  infNFeXML `xml:"infNFe"`
}

type infNFeXML struct {
	ID    string   `xml:"Id,attr"`
	Ide   ideXML   `xml:"ide"`
	Dest  destXML  `xml:"dest"`
	Det   []detXML `xml:"det"`
	Total totalXML `xml:"total"`
	Cobr  cobrXML  `xml:"cobr"`
}

type ideXML struct {
	Number string `xml:"nNF"`
	DhEmi  string `xml:"dhEmi"`
	DEmi   string `xml:"dEmi"`
}

type destXML struct {
	CNPJ  string   `xml:"CNPJ"`
	CPF   string   `xml:"CPF"`
	Name  string   `xml:"xNome"`
	Email string   `xml:"email"`
	Ender enderXML `xml:"enderDest"`
}

type enderXML struct {
	Street string `xml:"xLgr"`
	Number string `xml:"nro"`
	City   string `xml:"xMun"`
	State  string `xml:"UF"`
	Phone  string `xml:"fone"`
}

// det appears once for a single-item invoice and repeats otherwise; the
// slice field normalizes both shapes to a sequence.
type detXML struct {
	Prod    prodXML    `xml:"prod"`
	Imposto impostoXML `xml:"imposto"`
}

type prodXML struct {
	Description string `xml:"xProd"`
	Quantity    string `xml:"qCom"`
	UnitPrice   string `xml:"vUnCom"`
	TotalPrice  string `xml:"vProd"`
}

type impostoXML struct {
	ICMS icmsXML `xml:"ICMS"`
}

// icmsXML captures whichever tax-regime child element the issuer emitted.
type icmsXML struct {
	Regimes []regimeXML `xml:",any"`
}

type regimeXML struct {
	XMLName xml.Name
	PICMS   string `xml:"pICMS"`
	PCredSN string `xml:"pCredSN"`
	PICMSSN string `xml:"pICMSSN"`
}

type totalXML struct {
	ICMSTot icmsTotXML `xml:"ICMSTot"`
}

type icmsTotXML struct {
	Products string `xml:"vProd"`
	Discount string `xml:"vDesc"`
	Tax      string `xml:"vTotTrib"`
	Invoice  string `xml:"vNF"`
}

type cobrXML struct {
	Dup []dupXML `xml:"dup"`
}

type dupXML struct {
	DueDate string `xml:"dVenc"`
}

// taxRegimeOrder lists the known ICMS regime variants in priority order.
// When an item carries more than one, the first present wins.
var taxRegimeOrder = []struct {
	tag  string
	rate func(regimeXML) string
}{
	{"ICMS00", func(r regimeXML) string { return r.PICMS }},
	{"ICMS10", func(r regimeXML) string { return r.PICMS }},
	{"ICMS20", func(r regimeXML) string { return r.PICMS }},
	{"ICMS30", func(r regimeXML) string { return r.PICMS }},
	{"ICMS40", func(r regimeXML) string { return r.PICMS }},
	{"ICMS51", func(r regimeXML) string { return r.PICMS }},
	{"ICMS60", func(r regimeXML) string { return r.PICMS }},
	{"ICMS70", func(r regimeXML) string { return r.PICMS }},
	{"ICMS90", func(r regimeXML) string { return r.PICMS }},
	{"ICMSSN101", func(r regimeXML) string { return r.PCredSN }},
	{"ICMSSN102", func(r regimeXML) string { return "" }},
	{"ICMSSN900", func(r regimeXML) string { return r.PICMSSN }},
}

// Parse converts raw NFe XML into a canonical invoice. It accepts both the
// bare <NFe> root and the <nfeProc> processing envelope. Pure function, no
// side effects: every validation failure is reported before anything else
// can happen.
func Parse(raw []byte) (*Invoice, error) {
	inf, err := unwrap(raw)
	if err != nil {
		return nil, err
	}

	number := strings.TrimSpace(inf.Ide.Number)
	if number == "" {
		return nil, models.NewFieldMissingError("number", "invoice number (nNF) not found")
	}

	accessKey := strings.TrimPrefix(strings.TrimSpace(inf.ID), accessKeyPrefix)
	if accessKey == "" {
		return nil, models.NewFieldMissingError("access_key", "NFe access key (infNFe Id) not found")
	}

	totals := inf.Total.ICMSTot
	totalAmount := decOrZero(totals.Products)
	if !totalAmount.IsPositive() {
		return nil, models.NewValueInvalidError("total_amount", "total amount must be greater than zero")
	}

	if len(inf.Det) == 0 {
		return nil, models.NewValueInvalidError("items", "invoice has no line items")
	}

	doc := models.FiscalDocument{
		Number:         number,
		AccessKey:      accessKey,
		IssueDate:      parseIssueDate(inf.Ide.DhEmi, inf.Ide.DEmi),
		TotalAmount:    totalAmount,
		TaxAmount:      decOrZero(totals.Tax),
		DiscountAmount: decOrZero(totals.Discount),
		NetAmount:      decOrZero(totals.Invoice),
		Status:         models.DocumentStatusOpen,
		RawXML:         string(raw),
	}
	if len(inf.Cobr.Dup) > 0 {
		if due, ok := parseCalendarDate(inf.Cobr.Dup[0].DueDate); ok {
			doc.DueDate = &due
		}
	}

	items := make([]models.LineItem, 0, len(inf.Det))
	for i, det := range inf.Det {
		items = append(items, models.LineItem{
			Position:    i + 1,
			Description: strings.TrimSpace(det.Prod.Description),
			Quantity:    decOrZero(det.Prod.Quantity),
			UnitPrice:   decOrZero(det.Prod.UnitPrice),
			TotalPrice:  decOrZero(det.Prod.TotalPrice),
			TaxRate:     taxRate(det.Imposto.ICMS),
		})
	}

	return &Invoice{
		Document:     doc,
		Counterparty: counterparty(inf.Dest),
		Items:        items,
	}, nil
}

// unwrap locates infNFe whether the root is the envelope or the invoice.
func unwrap(raw []byte) (*infNFeXML, error) {
	var proc procXML
	if err := xml.Unmarshal(raw, &proc); err == nil {
		return &proc.NFe.InfNFe, nil
	}

	var doc nfeXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, models.NewFormatError("content is not a recognizable NFe document")
	}
	return &doc.InfNFe, nil
}

// taxRate scans the known regime variants in priority order and takes the
// rate from the first one present.
func taxRate(icms icmsXML) decimal.Decimal {
	for _, regime := range taxRegimeOrder {
		for _, present := range icms.Regimes {
			if present.XMLName.Local == regime.tag {
				return decOrZero(regime.rate(present))
			}
		}
	}
	return decimal.Zero
}

func counterparty(dest destXML) *models.Counterparty {
	cp := models.Counterparty{
		Name:    strings.TrimSpace(dest.Name),
		Email:   strings.TrimSpace(dest.Email),
		Phone:   strings.TrimSpace(dest.Ender.Phone),
		City:    strings.TrimSpace(dest.Ender.City),
		State:   strings.TrimSpace(dest.Ender.State),
		Address: joinAddress(dest.Ender.Street, dest.Ender.Number),
	}

	switch {
	case strings.TrimSpace(dest.CNPJ) != "":
		cp.Kind = models.CounterpartyEntity
		cp.Document = padDocument(dest.CNPJ, 14)
	case strings.TrimSpace(dest.CPF) != "":
		cp.Kind = models.CounterpartyIndividual
		cp.Document = padDocument(dest.CPF, 11)
	default:
		return nil
	}
	return &cp
}

func joinAddress(street, number string) string {
	street = strings.TrimSpace(street)
	number = strings.TrimSpace(number)
	if street == "" {
		return number
	}
	if number == "" {
		return street
	}
	return street + ", " + number
}

// padDocument strips non-digits and left-pads with zeros to the canonical
// CPF/CNPJ length.
func padDocument(raw string, width int) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	for len(digits) < width {
		digits = "0" + digits
	}
	return digits
}

// decOrZero coerces absent or non-numeric values to zero rather than
// propagating a parse failure into amount fields.
func decOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseIssueDate normalizes dhEmi (timestamp with offset) or dEmi (date
// only) to a plain calendar date. Unparseable dates fall back to the
// processing date.
func parseIssueDate(dhEmi, dEmi string) time.Time {
	for _, raw := range []string{dhEmi, dEmi} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if d, ok := parseCalendarDate(raw); ok {
			return d
		}
	}
	return calendarDate(time.Now().UTC())
}

func parseCalendarDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return calendarDate(t), true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
