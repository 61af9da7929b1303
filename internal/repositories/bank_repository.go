package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/atriumcode/controlfinance/internal/models"
)

type BankRepository interface {
	ExistsTransaction(ctx context.Context, accountRef, fitID string) (bool, error)
	CreateStatementImport(ctx context.Context, file *models.ImportedFile, txns []models.BankTransaction) (int, error)
	ListImportedFiles(ctx context.Context) ([]models.ImportedFile, error)
}

type bankRepository struct {
	db *sql.DB
}

func NewBankRepository(db *sql.DB) BankRepository {
	return &bankRepository{db: db}
}

func (r *bankRepository) ExistsTransaction(ctx context.Context, accountRef, fitID string) (bool, error) {
	var id int64
	query := `SELECT id FROM bank_transactions WHERE account_ref = ? AND fit_id = ?`
	err := r.db.QueryRowContext(ctx, query, accountRef, fitID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateStatementImport persists the remaining transactions plus the
// imported-file summary row in one transaction and returns how many rows
// were actually inserted. INSERT IGNORE lets a concurrent import of the
// same file lose the race on (account_ref, fit_id) without failing the
// whole batch; the lost rows surface in the skipped count instead.
func (r *bankRepository) CreateStatementImport(ctx context.Context, file *models.ImportedFile, txns []models.BankTransaction) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		INSERT IGNORE INTO bank_transactions (
			account_ref, fit_id, posted_at, amount, direction,
			type_code, description, synthesized, imported_file_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	fileQuery := `
		INSERT INTO imported_files (
			batch_id, file_name, account_ref, transaction_count,
			skipped_count, start_date, end_date, uploaded_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.ExecContext(ctx, fileQuery,
		file.BatchID,
		file.FileName,
		file.AccountRef,
		file.TransactionCount,
		file.SkippedCount,
		file.StartDate,
		file.EndDate,
		file.UploadedBy,
	)
	if err != nil {
		return 0, err
	}
	fileID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	file.ID = fileID

	inserted := 0
	for i := range txns {
		res, err := tx.ExecContext(ctx, query,
			txns[i].AccountRef,
			txns[i].FitID,
			txns[i].PostedAt,
			txns[i].Amount,
			txns[i].Direction,
			txns[i].TypeCode,
			txns[i].Description,
			txns[i].Synthesized,
			fileID,
		)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if n > 0 {
			inserted++
		}
	}

	if inserted != file.TransactionCount {
		file.SkippedCount += file.TransactionCount - inserted
		file.TransactionCount = inserted
		updateQuery := `UPDATE imported_files SET transaction_count = ?, skipped_count = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, updateQuery, file.TransactionCount, file.SkippedCount, fileID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *bankRepository) ListImportedFiles(ctx context.Context) ([]models.ImportedFile, error) {
	query := `
		SELECT id, batch_id, file_name, account_ref, transaction_count,
		       skipped_count, start_date, end_date, uploaded_by, created_at
		FROM imported_files
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.ImportedFile
	for rows.Next() {
		var f models.ImportedFile
		err := rows.Scan(
			&f.ID,
			&f.BatchID,
			&f.FileName,
			&f.AccountRef,
			&f.TransactionCount,
			&f.SkippedCount,
			&f.StartDate,
			&f.EndDate,
			&f.UploadedBy,
			&f.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}
