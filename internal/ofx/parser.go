package ofx

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"github.com/atriumcode/controlfinance/internal/models"
)

// signatureTag must be present for the content to be treated as OFX at all.
const signatureTag = "<OFX>"

// repairPairs fixes the double-encoding corruption some banks produce for
// accented characters (UTF-8 bytes re-read as Latin-1). Static, read-only.
var repairPairs = []string{
	"Ã¡", "á", "Ã¢", "â", "Ã£", "ã",
	"Ã©", "é", "Ãª", "ê",
	"Ã­", "í",
	"Ã³", "ó", "Ã´", "ô", "Ãµ", "õ",
	"Ãº", "ú", "Ã¼", "ü",
	"Ã§", "ç",
	"Ã‰", "É", "Ã‡", "Ç", "Ã“", "Ó", "Ãš", "Ú",
}

var repairReplacer = strings.NewReplacer(repairPairs...)

var stmtTrnPattern = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// tagPatterns matches a tag's first textual occurrence up to the next tag.
// OFX is SGML-flavored: closing tags are optional and unreliable.
var tagPatterns = buildTagPatterns(
	"BANKID", "ACCTID", "ACCTTYPE", "DTSTART", "DTEND",
	"TRNTYPE", "DTPOSTED", "TRNAMT", "FITID",
	"MEMO", "NAME", "PAYEE", "REFNUM", "CHECKNUM",
)

func buildTagPatterns(tags ...string) map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(tags))
	for _, tag := range tags {
		m[tag] = regexp.MustCompile(`(?i)<` + tag + `>[ \t]*([^<\r\n]+)`)
	}
	return m
}

// descriptionTags in priority order; the first with content wins.
var descriptionTags = []string{"MEMO", "NAME", "PAYEE", "REFNUM", "CHECKNUM"}

// typeLabels maps TRNTYPE codes to a display label used as a last-resort
// description.
var typeLabels = map[string]string{
	"CREDIT":  "Crédito em conta",
	"DEBIT":   "Débito em conta",
	"XFER":    "Transferência",
	"PAYMENT": "Pagamento",
	"PIX":     "Pix",
	"INT":     "Rendimentos",
	"DIV":     "Dividendos",
	"FEE":     "Tarifa bancária",
	"SRVCHG":  "Tarifa de serviço",
	"ATM":     "Saque",
	"POS":     "Compra no débito",
	"DEP":     "Depósito",
	"CHECK":   "Cheque",
}

const defaultTypeLabel = "Transação bancária"

// tokenStopwords are uppercase tokens that carry no meaning when mining a
// description out of the raw block text.
var tokenStopwords = map[string]bool{
	"CREDIT": true, "DEBIT": true, "OTHER": true, "PAYMENT": true,
	"XFER": true, "CHECK": true, "CASH": true, "ATM": true, "POS": true,
	"TRUE": true, "NULL": true, "NONE": true,
}

// Parse converts raw OFX bytes into a canonical statement batch. Pure
// function over the in-memory buffer, no I/O.
func Parse(raw []byte) (*models.StatementBatch, error) {
	content := repairReplacer.Replace(normalizeNewlines(decode(raw)))

	if !strings.Contains(strings.ToUpper(content), signatureTag) {
		return nil, models.NewFormatError("content has no OFX signature tag")
	}

	batch := &models.StatementBatch{
		BankID:      tagValue(content, "BANKID"),
		AccountID:   tagValue(content, "ACCTID"),
		AccountType: tagValue(content, "ACCTTYPE"),
		StartDate:   parseDate(tagValue(content, "DTSTART")),
		EndDate:     parseDate(tagValue(content, "DTEND")),
	}

	accountRef := batch.AccountRef()
	now := time.Now()
	for i, m := range stmtTrnPattern.FindAllStringSubmatch(content, -1) {
		block := m[1]

		amount := parseAmount(tagValue(block, "TRNAMT"))
		direction := models.DirectionCredit
		if amount.IsNegative() {
			direction = models.DirectionDebit
		}

		fitID := tagValue(block, "FITID")
		synthesized := false
		if fitID == "" {
			// Unstable across re-imports of the same file, which defeats
			// dedup for these rows. Kept visible via the Synthesized flag.
			fitID = fmt.Sprintf("GEN-%s-%d", now.Format("20060102150405"), i)
			synthesized = true
			batch.SynthesizedCount++
		}

		typeCode := strings.ToUpper(tagValue(block, "TRNTYPE"))
		batch.Transactions = append(batch.Transactions, models.BankTransaction{
			AccountRef:  accountRef,
			FitID:       fitID,
			PostedAt:    parseDate(tagValue(block, "DTPOSTED")),
			Amount:      amount.Abs(),
			Direction:   direction,
			TypeCode:    typeCode,
			Description: description(block, typeCode, amount),
			Synthesized: synthesized,
		})
	}

	sort.SliceStable(batch.Transactions, func(i, j int) bool {
		return batch.Transactions[i].PostedAt.After(batch.Transactions[j].PostedAt)
	})

	return batch, nil
}

// decode prefers UTF-8 and falls back to Latin-1 when the bytes are not
// valid UTF-8 or already carry replacement runes.
func decode(raw []byte) string {
	if !utf8.Valid(raw) || bytes.ContainsRune(raw, utf8.RuneError) {
		if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw); err == nil {
			return string(decoded)
		}
	}
	return string(raw)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func tagValue(s, tag string) string {
	m := tagPatterns[tag].FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// description builds a readable label from the block's free-text fields in
// priority order, then from meaningful raw tokens, then from the type code.
func description(block, typeCode string, amount decimal.Decimal) string {
	for _, tag := range descriptionTags {
		if v := tagValue(block, tag); v != "" {
			return v
		}
	}

	if tokens := meaningfulTokens(block); tokens != "" {
		return tokens
	}

	label, ok := typeLabels[typeCode]
	if !ok {
		label = defaultTypeLabel
	}
	return label + " " + amount.Abs().StringFixed(2)
}

// meaningfulTokens strips markup from the block and keeps tokens that are
// long enough, not purely numeric and not known keywords.
func meaningfulTokens(block string) string {
	text := markupPattern.ReplaceAllString(block, " ")

	var kept []string
	for _, token := range strings.Fields(text) {
		if len(token) < 4 {
			continue
		}
		if isNumeric(token) {
			continue
		}
		if tokenStopwords[strings.ToUpper(token)] {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

func isNumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == ',' || r == '-' || r == '+' || r == '/':
		default:
			return false
		}
	}
	return true
}

// parseAmount accepts both dot and comma decimal separators. Non-numeric
// values coerce to zero.
func parseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseDate normalizes compact OFX dates (YYYYMMDD or YYYYMMDDHHMMSS, with
// an optional [gmt offset:tz] suffix) to a plain calendar date. Unparseable
// values fall back to the processing date.
func parseDate(s string) time.Time {
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)

	if len(s) >= 14 {
		if t, err := time.Parse("20060102150405", s[:14]); err == nil {
			return calendarDate(t)
		}
	}
	if len(s) >= 8 {
		if t, err := time.Parse("20060102", s[:8]); err == nil {
			return t
		}
	}
	return calendarDate(time.Now().UTC())
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
