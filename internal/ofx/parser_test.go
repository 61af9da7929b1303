package ofx

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atriumcode/controlfinance/internal/models"
)

func TestParse_Statement(t *testing.T) {
	raw, err := os.ReadFile("testdata/statement.ofx")
	require.NoError(t, err)

	batch, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "0341", batch.BankID)
	assert.Equal(t, "56789-0", batch.AccountID)
	assert.Equal(t, "CHECKING", batch.AccountType)
	assert.Equal(t, "0341/56789-0", batch.AccountRef())
	assert.Equal(t, time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC), batch.StartDate)
	assert.Equal(t, time.Date(2023, 8, 31, 0, 0, 0, 0, time.UTC), batch.EndDate)
	assert.Len(t, batch.Transactions, 3)
	assert.Zero(t, batch.SynthesizedCount)
}

func TestParse_SortedByPostedDateDescending(t *testing.T) {
	raw, err := os.ReadFile("testdata/statement.ofx")
	require.NoError(t, err)

	batch, err := Parse(raw)
	require.NoError(t, err)

	txns := batch.Transactions
	require.Len(t, txns, 3)
	assert.Equal(t, "TX2023082001", txns[0].FitID)
	assert.Equal(t, "TX2023081501", txns[1].FitID)
	assert.Equal(t, "TX2023081001", txns[2].FitID)
	for i := 1; i < len(txns); i++ {
		assert.False(t, txns[i].PostedAt.After(txns[i-1].PostedAt))
	}
}

func TestParse_AmountSignBecomesDirection(t *testing.T) {
	raw, err := os.ReadFile("testdata/statement.ofx")
	require.NoError(t, err)

	batch, err := Parse(raw)
	require.NoError(t, err)

	byID := make(map[string]models.BankTransaction)
	for _, txn := range batch.Transactions {
		byID[txn.FitID] = txn
	}

	debit := byID["TX2023081501"]
	assert.Equal(t, "150.32", debit.Amount.StringFixed(2))
	assert.Equal(t, models.DirectionDebit, debit.Direction)

	credit := byID["TX2023082001"]
	assert.Equal(t, "200.00", credit.Amount.StringFixed(2))
	assert.Equal(t, models.DirectionCredit, credit.Direction)

	// Comma decimal separator is accepted.
	comma := byID["TX2023081001"]
	assert.Equal(t, "75.50", comma.Amount.StringFixed(2))
	assert.Equal(t, models.DirectionDebit, comma.Direction)
}

func TestParse_EncodingRepair(t *testing.T) {
	raw, err := os.ReadFile("testdata/statement.ofx")
	require.NoError(t, err)

	batch, err := Parse(raw)
	require.NoError(t, err)

	var credit models.BankTransaction
	for _, txn := range batch.Transactions {
		if txn.FitID == "TX2023082001" {
			credit = txn
		}
	}
	assert.Equal(t, "Transferência recebida João", credit.Description)
}

func TestParse_DescriptionPriority(t *testing.T) {
	block := `<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20230801
<TRNAMT>-10.00
<FITID>A1
<NAME>Nome segundario
<MEMO>Memo vence
</STMTTRN>`

	batch, err := Parse([]byte(wrapOFX(block)))
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 1)
	assert.Equal(t, "Memo vence", batch.Transactions[0].Description)
}

func TestParse_DescriptionTokenFallback(t *testing.T) {
	raw, err := os.ReadFile("testdata/statement.ofx")
	require.NoError(t, err)

	batch, err := Parse(raw)
	require.NoError(t, err)

	// No free-text field: meaningful tokens mined from the raw block.
	var noText models.BankTransaction
	for _, txn := range batch.Transactions {
		if txn.FitID == "TX2023081001" {
			noText = txn
		}
	}
	assert.Equal(t, "TX2023081001", noText.Description)
}

func TestParse_DescriptionTypeLabelFallback(t *testing.T) {
	block := `<STMTTRN>
<TRNTYPE>FEE
<DTPOSTED>20230801
<TRNAMT>-9.90
</STMTTRN>`

	batch, err := Parse([]byte(wrapOFX(block)))
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 1)
	assert.Equal(t, "Tarifa bancária 9.90", batch.Transactions[0].Description)
}

func TestParse_SynthesizedFitID(t *testing.T) {
	block := `<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20230801
<TRNAMT>-10.00
<MEMO>Sem identificador
</STMTTRN>`

	batch, err := Parse([]byte(wrapOFX(block)))
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 1)

	txn := batch.Transactions[0]
	assert.True(t, strings.HasPrefix(txn.FitID, "GEN-"))
	assert.True(t, txn.Synthesized)
	assert.Equal(t, 1, batch.SynthesizedCount)
}

func TestParse_MissingSignatureTag(t *testing.T) {
	_, err := Parse([]byte("OFXHEADER:100\nDATA:OFXSGML\n<BANKID>0341\n"))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindFormat))
}

func TestParse_Latin1Fallback(t *testing.T) {
	content := wrapOFX(`<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20230801
<TRNAMT>-10.00
<FITID>L1
<MEMO>Servi__o prestado
</STMTTRN>`)
	// 0xE7 is "ç" in ISO-8859-1 and invalid on its own in UTF-8.
	raw := []byte(strings.Replace(content, "__", "\xe7", 1))

	batch, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 1)
	assert.Equal(t, "Serviço prestado", batch.Transactions[0].Description)
}

func TestParse_UnparseableDateFallsBackToToday(t *testing.T) {
	block := `<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>garbage
<TRNAMT>-10.00
<FITID>D1
<MEMO>Data invalida
</STMTTRN>`

	batch, err := Parse([]byte(wrapOFX(block)))
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 1)

	now := time.Now().UTC()
	posted := batch.Transactions[0].PostedAt
	assert.Equal(t, now.Year(), posted.Year())
	assert.Equal(t, now.YearDay(), posted.YearDay())
}

func TestParse_Deterministic(t *testing.T) {
	raw, err := os.ReadFile("testdata/statement.ofx")
	require.NoError(t, err)

	first, err := Parse(raw)
	require.NoError(t, err)
	second, err := Parse(raw)
	require.NoError(t, err)

	require.Equal(t, len(first.Transactions), len(second.Transactions))
	for i := range first.Transactions {
		assert.Equal(t, first.Transactions[i].FitID, second.Transactions[i].FitID)
		assert.True(t, first.Transactions[i].Amount.Equal(second.Transactions[i].Amount))
	}
}

// wrapOFX surrounds transaction blocks with a minimal statement envelope.
func wrapOFX(blocks string) string {
	return `OFXHEADER:100

<OFX>
<BANKACCTFROM>
<BANKID>0001
<ACCTID>12345-6
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20230801
<DTEND>20230831
` + blocks + `
</BANKTRANLIST>
</OFX>`
}
