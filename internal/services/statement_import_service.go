package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atriumcode/controlfinance/internal/models"
	"github.com/atriumcode/controlfinance/internal/ofx"
	"github.com/atriumcode/controlfinance/internal/repositories"
)

type StatementImportService struct {
	bankRepo repositories.BankRepository
	log      zerolog.Logger
}

func NewStatementImportService(bankRepo repositories.BankRepository, log zerolog.Logger) *StatementImportService {
	return &StatementImportService{bankRepo: bankRepo, log: log}
}

// FilePayload is one raw OFX file submitted for import.
type FilePayload struct {
	FileName string `json:"file_name"`
	Content  []byte `json:"content"`
}

type StatementImportResult struct {
	FileName    string    `json:"file_name"`
	BatchID     string    `json:"batch_id,omitempty"`
	BankID      string    `json:"bank_id,omitempty"`
	AccountID   string    `json:"account_id,omitempty"`
	AccountType string    `json:"account_type,omitempty"`
	StartDate   time.Time `json:"start_date,omitempty"`
	EndDate     time.Time `json:"end_date,omitempty"`
	Imported    int       `json:"imported"`
	Skipped     int       `json:"skipped"`
	Synthesized int       `json:"synthesized,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ImportFile ingests a single OFX file. Transactions whose FITID is already
// stored for the account are filtered out silently; only the skipped count
// surfaces. The remaining transactions and one imported-file summary row
// are persisted atomically.
func (s *StatementImportService) ImportFile(ctx context.Context, uploadedBy, fileName string, raw []byte) (*StatementImportResult, error) {
	batch, err := ofx.Parse(raw)
	if err != nil {
		return nil, withFile(err, fileName)
	}

	accountRef := batch.AccountRef()
	skipped := 0
	remaining := make([]models.BankTransaction, 0, len(batch.Transactions))
	for _, txn := range batch.Transactions {
		exists, err := s.bankRepo.ExistsTransaction(ctx, accountRef, txn.FitID)
		if err != nil {
			return nil, models.NewPersistenceError(err).WithFile(fileName)
		}
		if exists {
			skipped++
			continue
		}
		remaining = append(remaining, txn)
	}

	file := models.ImportedFile{
		BatchID:          uuid.NewString(),
		FileName:         fileName,
		AccountRef:       accountRef,
		TransactionCount: len(remaining),
		SkippedCount:     skipped,
		StartDate:        batch.StartDate,
		EndDate:          batch.EndDate,
		UploadedBy:       uploadedBy,
	}

	inserted, err := s.bankRepo.CreateStatementImport(ctx, &file, remaining)
	if err != nil {
		return nil, models.NewPersistenceError(err).WithFile(fileName)
	}

	s.log.Info().
		Str("file", fileName).
		Str("account", accountRef).
		Int("imported", inserted).
		Int("skipped", file.SkippedCount).
		Msg("statement imported")

	return &StatementImportResult{
		FileName:    fileName,
		BatchID:     file.BatchID,
		BankID:      batch.BankID,
		AccountID:   batch.AccountID,
		AccountType: batch.AccountType,
		StartDate:   batch.StartDate,
		EndDate:     batch.EndDate,
		Imported:    inserted,
		Skipped:     file.SkippedCount,
		Synthesized: batch.SynthesizedCount,
	}, nil
}

// ImportFiles processes a multi-file submission sequentially, one file at a
// time. A bad file produces an error entry in its result; it never fails
// the rest of the batch.
func (s *StatementImportService) ImportFiles(ctx context.Context, uploadedBy string, files []FilePayload) []StatementImportResult {
	results := make([]StatementImportResult, 0, len(files))
	for _, f := range files {
		result, err := s.ImportFile(ctx, uploadedBy, f.FileName, f.Content)
		if err != nil {
			s.log.Warn().Str("file", f.FileName).Err(err).Msg("statement import failed")
			results = append(results, StatementImportResult{
				FileName: f.FileName,
				Error:    err.Error(),
			})
			continue
		}
		results = append(results, *result)
	}
	return results
}

// History returns the imported-file records, newest first.
func (s *StatementImportService) History(ctx context.Context) ([]models.ImportedFile, error) {
	files, err := s.bankRepo.ListImportedFiles(ctx)
	if err != nil {
		return nil, models.NewPersistenceError(err)
	}
	return files, nil
}
