package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/atriumcode/controlfinance/internal/models"
)

type CounterpartyRepository interface {
	FindIDByDocument(ctx context.Context, companyID int64, document string) (int64, bool, error)
	Create(ctx context.Context, cp *models.Counterparty) error
}

type counterpartyRepository struct {
	db *sql.DB
}

func NewCounterpartyRepository(db *sql.DB) CounterpartyRepository {
	return &counterpartyRepository{db: db}
}

func (r *counterpartyRepository) FindIDByDocument(ctx context.Context, companyID int64, document string) (int64, bool, error) {
	var id int64
	query := `SELECT id FROM counterparties WHERE company_id = ? AND document = ?`
	err := r.db.QueryRowContext(ctx, query, companyID, document).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Create inserts the counterparty and sets its ID. When a concurrent import
// created the same document first, the existing row's id is adopted instead
// of failing.
func (r *counterpartyRepository) Create(ctx context.Context, cp *models.Counterparty) error {
	query := `
		INSERT INTO counterparties (
			company_id, name, document, kind, email, phone, address, city, state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		cp.CompanyID,
		cp.Name,
		cp.Document,
		cp.Kind,
		cp.Email,
		cp.Phone,
		cp.Address,
		cp.City,
		cp.State,
	)
	if err != nil {
		if isDuplicateKey(err) {
			id, found, lookupErr := r.FindIDByDocument(ctx, cp.CompanyID, cp.Document)
			if lookupErr != nil {
				return lookupErr
			}
			if found {
				cp.ID = id
				return nil
			}
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	cp.ID = id
	return nil
}
