package nfe

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atriumcode/controlfinance/internal/models"
)

func TestParse_ProcessingEnvelope(t *testing.T) {
	raw, err := os.ReadFile("testdata/invoice_proc.xml")
	require.NoError(t, err)

	inv, err := Parse(raw)
	require.NoError(t, err)

	doc := inv.Document
	assert.Equal(t, "1234", doc.Number)
	assert.Equal(t, "35210412345678000195550010000012341000012349", doc.AccessKey)
	assert.Len(t, doc.AccessKey, 44)
	assert.Equal(t, time.Date(2021, 4, 12, 0, 0, 0, 0, time.UTC), doc.IssueDate)
	assert.Equal(t, "500.00", doc.TotalAmount.StringFixed(2))
	assert.Equal(t, "45.00", doc.TaxAmount.StringFixed(2))
	assert.Equal(t, "20.00", doc.DiscountAmount.StringFixed(2))
	assert.Equal(t, "525.00", doc.NetAmount.StringFixed(2))
	assert.Equal(t, models.DocumentStatusOpen, doc.Status)
	assert.Equal(t, string(raw), doc.RawXML)

	require.NotNil(t, doc.DueDate)
	assert.Equal(t, time.Date(2021, 5, 12, 0, 0, 0, 0, time.UTC), *doc.DueDate)

	require.Len(t, inv.Items, 2)
	assert.Equal(t, "Serviço de manutenção", inv.Items[0].Description)
	assert.Equal(t, "18.00", inv.Items[0].TaxRate.StringFixed(2))
	assert.Equal(t, "2.50", inv.Items[1].TaxRate.StringFixed(2))
	assert.Equal(t, 1, inv.Items[0].Position)
	assert.Equal(t, 2, inv.Items[1].Position)
}

func TestParse_BareRootSingleItem(t *testing.T) {
	raw, err := os.ReadFile("testdata/invoice_bare.xml")
	require.NoError(t, err)

	inv, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "5678", inv.Document.Number)
	assert.Equal(t, time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC), inv.Document.IssueDate)
	assert.Nil(t, inv.Document.DueDate)

	// A lone det element still comes out as a one-element sequence.
	require.Len(t, inv.Items, 1)
	assert.Equal(t, "Consultoria avulsa", inv.Items[0].Description)
	assert.True(t, inv.Items[0].TaxRate.IsZero())
}

func TestParse_Deterministic(t *testing.T) {
	raw, err := os.ReadFile("testdata/invoice_proc.xml")
	require.NoError(t, err)

	first, err := Parse(raw)
	require.NoError(t, err)
	second, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, first.Document.AccessKey, second.Document.AccessKey)
	assert.True(t, first.Document.TotalAmount.Equal(second.Document.TotalAmount))
	assert.Equal(t, len(first.Items), len(second.Items))
}

func TestParse_CounterpartyEntity(t *testing.T) {
	raw, err := os.ReadFile("testdata/invoice_proc.xml")
	require.NoError(t, err)

	inv, err := Parse(raw)
	require.NoError(t, err)

	cp := inv.Counterparty
	require.NotNil(t, cp)
	assert.Equal(t, models.CounterpartyEntity, cp.Kind)
	assert.Equal(t, "98765432000188", cp.Document)
	assert.Equal(t, "Cliente Exemplo Ltda", cp.Name)
	assert.Equal(t, "financeiro@exemplo.com.br", cp.Email)
	assert.Equal(t, "Rua das Flores, 100", cp.Address)
	assert.Equal(t, "São Paulo", cp.City)
	assert.Equal(t, "SP", cp.State)
}

func TestParse_CounterpartyIndividualPadded(t *testing.T) {
	raw, err := os.ReadFile("testdata/invoice_bare.xml")
	require.NoError(t, err)

	inv, err := Parse(raw)
	require.NoError(t, err)

	cp := inv.Counterparty
	require.NotNil(t, cp)
	assert.Equal(t, models.CounterpartyIndividual, cp.Kind)
	// 10-digit CPF left-padded to the canonical 11.
	assert.Equal(t, "05540020317", cp.Document)
}

func TestParse_ItemArithmetic(t *testing.T) {
	raw, err := os.ReadFile("testdata/invoice_proc.xml")
	require.NoError(t, err)

	inv, err := Parse(raw)
	require.NoError(t, err)

	tolerance := decimal.NewFromFloat(0.01)
	sum := decimal.Zero
	for _, item := range inv.Items {
		diff := item.Quantity.Mul(item.UnitPrice).Sub(item.TotalPrice).Abs()
		assert.True(t, diff.LessThanOrEqual(tolerance),
			"item %d: qty*unit differs from total by %s", item.Position, diff)
		sum = sum.Add(item.TotalPrice)
	}

	doc := inv.Document
	declared := sum.Add(doc.TaxAmount).Sub(doc.DiscountAmount)
	assert.True(t, declared.Sub(doc.NetAmount).Abs().LessThanOrEqual(tolerance))
}

func TestParse_TaxRegimeFirstMatchWins(t *testing.T) {
	inv, err := Parse([]byte(invoiceWith(`
		<det nItem="1">
			<prod><xProd>Item</xProd><qCom>1</qCom><vUnCom>10.00</vUnCom><vProd>10.00</vProd></prod>
			<imposto><ICMS>
				<ICMSSN101><pCredSN>3.00</pCredSN></ICMSSN101>
				<ICMS00><pICMS>18.00</pICMS></ICMS00>
			</ICMS></imposto>
		</det>`)))
	require.NoError(t, err)

	// ICMS00 outranks ICMSSN101 even when it appears later in the document.
	assert.Equal(t, "18.00", inv.Items[0].TaxRate.StringFixed(2))
}

func TestParse_MissingAccessKey(t *testing.T) {
	raw := strings.Replace(invoiceWith(defaultItem), `Id="NFe35230812345678000195550010000056781000056789"`, "", 1)

	_, err := Parse([]byte(raw))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindFieldMissing))

	var ie *models.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "access_key", ie.Field)
}

func TestParse_MissingInvoiceNumber(t *testing.T) {
	raw := strings.Replace(invoiceWith(defaultItem), "<nNF>5678</nNF>", "", 1)

	_, err := Parse([]byte(raw))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindFieldMissing))

	var ie *models.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "number", ie.Field)
}

func TestParse_NonPositiveTotal(t *testing.T) {
	raw := strings.Replace(invoiceWith(defaultItem), "<vProd>850.00</vProd>\n<vNF>850.00</vNF>", "<vProd>0.00</vProd>", 1)

	_, err := Parse([]byte(raw))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindValueInvalid))
}

func TestParse_NoLineItems(t *testing.T) {
	_, err := Parse([]byte(invoiceWith("")))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindValueInvalid))
}

func TestParse_UnrecognizableContent(t *testing.T) {
	_, err := Parse([]byte("definitely not xml"))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindFormat))
}

func TestParse_UnparseableDateFallsBackToToday(t *testing.T) {
	raw := strings.Replace(invoiceWith(defaultItem), "<dEmi>2023-08-01</dEmi>", "<dEmi>not-a-date</dEmi>", 1)

	inv, err := Parse([]byte(raw))
	require.NoError(t, err)

	now := time.Now().UTC()
	assert.Equal(t, now.Year(), inv.Document.IssueDate.Year())
	assert.Equal(t, now.YearDay(), inv.Document.IssueDate.YearDay())
}

func TestParse_NonNumericAmountsCoerceToZero(t *testing.T) {
	raw := strings.Replace(invoiceWith(defaultItem), "<vNF>850.00</vNF>", "<vNF>abc</vNF>", 1)

	inv, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.True(t, inv.Document.NetAmount.IsZero())
}

const defaultItem = `
	<det nItem="1">
		<prod><xProd>Item</xProd><qCom>1</qCom><vUnCom>850.00</vUnCom><vProd>850.00</vProd></prod>
		<imposto><ICMS><ICMS00><pICMS>18.00</pICMS></ICMS00></ICMS></imposto>
	</det>`

// invoiceWith renders a minimal bare-root invoice around the given det
// block(s).
func invoiceWith(items string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<NFe xmlns="http://www.portalfiscal.inf.br/nfe">
<infNFe Id="NFe35230812345678000195550010000056781000056789">
<ide><nNF>5678</nNF><dEmi>2023-08-01</dEmi></ide>
<dest><CNPJ>98765432000188</CNPJ><xNome>Cliente</xNome></dest>` +
		items + `
<total><ICMSTot><vProd>850.00</vProd>
<vNF>850.00</vNF></ICMSTot></total>
</infNFe>
</NFe>`
}
