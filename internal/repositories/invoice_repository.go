package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/atriumcode/controlfinance/internal/models"
)

type InvoiceRepository interface {
	FindIDByAccessKey(ctx context.Context, companyID int64, accessKey string) (int64, bool, error)
	CreateWithItems(ctx context.Context, doc *models.FiscalDocument, items []models.LineItem) error
}

type invoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) FindIDByAccessKey(ctx context.Context, companyID int64, accessKey string) (int64, bool, error) {
	var id int64
	query := `SELECT id FROM fiscal_documents WHERE company_id = ? AND access_key = ?`
	err := r.db.QueryRowContext(ctx, query, companyID, accessKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// CreateWithItems persists the document and all of its line items in one
// transaction. A failure on any item leaves no orphaned document behind.
// A uniqueness violation on (company_id, access_key) is reported as a
// duplicate, so a concurrent import racing through resolve and insert
// degrades to an ordinary duplicate outcome.
func (r *invoiceRepository) CreateWithItems(ctx context.Context, doc *models.FiscalDocument, items []models.LineItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO fiscal_documents (
			company_id, number, access_key, issue_date, due_date,
			total_amount, tax_amount, discount_amount, net_amount,
			status, counterparty_id, raw_xml
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var counterpartyID interface{}
	if doc.CounterpartyID != 0 {
		counterpartyID = doc.CounterpartyID
	}
	result, err := tx.ExecContext(ctx, query,
		doc.CompanyID,
		doc.Number,
		doc.AccessKey,
		doc.IssueDate,
		doc.DueDate,
		doc.TotalAmount,
		doc.TaxAmount,
		doc.DiscountAmount,
		doc.NetAmount,
		doc.Status,
		counterpartyID,
		doc.RawXML,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return models.NewDuplicateError("document with access key " + doc.AccessKey + " already imported")
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id

	itemQuery := `
		INSERT INTO line_items (
			document_id, position, description, quantity,
			unit_price, total_price, tax_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i := range items {
		items[i].DocumentID = id
		_, err := tx.ExecContext(ctx, itemQuery,
			items[i].DocumentID,
			items[i].Position,
			items[i].Description,
			items[i].Quantity,
			items[i].UnitPrice,
			items[i].TotalPrice,
			items[i].TaxRate,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// isDuplicateKey reports MySQL error 1062 (duplicate entry for a unique key).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
