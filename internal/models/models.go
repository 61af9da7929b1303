package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FiscalDocument represents an electronic tax invoice (NFe) ingested from XML
type FiscalDocument struct {
	ID             int64           `db:"id" json:"id"`
	CompanyID      int64           `db:"company_id" json:"company_id"`
	Number         string          `db:"number" json:"number"`
	AccessKey      string          `db:"access_key" json:"access_key"`
	IssueDate      time.Time       `db:"issue_date" json:"issue_date"`
	DueDate        *time.Time      `db:"due_date" json:"due_date,omitempty"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	NetAmount      decimal.Decimal `db:"net_amount" json:"net_amount"`
	Status         string          `db:"status" json:"status"`
	CounterpartyID int64           `db:"counterparty_id" json:"counterparty_id"`
	RawXML         string          `db:"raw_xml" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"-"`
	UpdatedAt      time.Time       `db:"updated_at" json:"-"`
}

// LineItem is a single invoice line
type LineItem struct {
	ID          int64           `db:"id" json:"id"`
	DocumentID  int64           `db:"document_id" json:"document_id"`
	Position    int             `db:"position" json:"position"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
	TaxRate     decimal.Decimal `db:"tax_rate" json:"tax_rate"`
}

// Counterparty is the other party on a fiscal document, unique per company
// by its tax document (CPF or CNPJ).
type Counterparty struct {
	ID        int64     `db:"id" json:"id"`
	CompanyID int64     `db:"company_id" json:"company_id"`
	Name      string    `db:"name" json:"name"`
	Document  string    `db:"document" json:"document"`
	Kind      string    `db:"kind" json:"kind"`
	Email     string    `db:"email" json:"email,omitempty"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	Address   string    `db:"address" json:"address,omitempty"`
	City      string    `db:"city" json:"city,omitempty"`
	State     string    `db:"state" json:"state,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// BankTransaction represents one statement entry. Amount is always the
// absolute value; Direction carries the sign.
type BankTransaction struct {
	ID          int64           `db:"id" json:"id"`
	AccountRef  string          `db:"account_ref" json:"account_ref"`
	FitID       string          `db:"fit_id" json:"fit_id"`
	PostedAt    time.Time       `db:"posted_at" json:"posted_at"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Direction   string          `db:"direction" json:"direction"`
	TypeCode    string          `db:"type_code" json:"type_code"`
	Description string          `db:"description" json:"description"`
	Synthesized bool            `db:"synthesized" json:"synthesized,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"-"`
}

// StatementBatch is the parsed content of one OFX file.
type StatementBatch struct {
	BankID           string            `json:"bank_id"`
	AccountID        string            `json:"account_id"`
	AccountType      string            `json:"account_type"`
	StartDate        time.Time         `json:"start_date"`
	EndDate          time.Time         `json:"end_date"`
	Transactions     []BankTransaction `json:"transactions"`
	SynthesizedCount int               `json:"synthesized_count,omitempty"`
}

// AccountRef returns the dedup scope for the batch's transactions.
func (b *StatementBatch) AccountRef() string {
	if b.BankID == "" {
		return b.AccountID
	}
	return b.BankID + "/" + b.AccountID
}

// ImportedFile is the per-file summary record created for each accepted
// OFX upload, kept for history display.
type ImportedFile struct {
	ID               int64     `db:"id" json:"id"`
	BatchID          string    `db:"batch_id" json:"batch_id"`
	FileName         string    `db:"file_name" json:"file_name"`
	AccountRef       string    `db:"account_ref" json:"account_ref"`
	TransactionCount int       `db:"transaction_count" json:"transaction_count"`
	SkippedCount     int       `db:"skipped_count" json:"skipped_count"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	EndDate          time.Time `db:"end_date" json:"end_date"`
	UploadedBy       string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// FiscalDocument status constants
const (
	DocumentStatusOpen = "open"
	DocumentStatusPaid = "paid"
)

// Counterparty kind constants, derived from tax document length
// (11 digits -> CPF/individual, 14 digits -> CNPJ/entity).
const (
	CounterpartyIndividual = "individual"
	CounterpartyEntity     = "entity"
)

// BankTransaction direction constants
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)
