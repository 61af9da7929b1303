package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/atriumcode/controlfinance/internal/models"
	"github.com/atriumcode/controlfinance/internal/nfe"
	"github.com/atriumcode/controlfinance/internal/repositories"
)

type InvoiceImportService struct {
	invoiceRepo      repositories.InvoiceRepository
	counterpartyRepo repositories.CounterpartyRepository
	log              zerolog.Logger
}

func NewInvoiceImportService(
	invoiceRepo repositories.InvoiceRepository,
	counterpartyRepo repositories.CounterpartyRepository,
	log zerolog.Logger,
) *InvoiceImportService {
	return &InvoiceImportService{
		invoiceRepo:      invoiceRepo,
		counterpartyRepo: counterpartyRepo,
		log:              log,
	}
}

type InvoiceImportResult struct {
	InvoiceID int64          `json:"invoice_id"`
	Summary   InvoiceSummary `json:"summary"`
}

type InvoiceSummary struct {
	Number       string          `json:"number"`
	AccessKey    string          `json:"access_key"`
	IssueDate    time.Time       `json:"issue_date"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	ItemCount    int             `json:"item_count"`
	Counterparty string          `json:"counterparty,omitempty"`
}

// Import runs one invoice through the full pipeline: parse, resolve the
// access key, resolve or create the counterparty, persist document and
// items atomically. Parse and validation failures leave zero side effects.
// A natural key already present is a hard duplicate error, never a silent
// skip, so the caller can tell "already imported" from "imported".
func (s *InvoiceImportService) Import(ctx context.Context, companyID int64, fileName string, raw []byte) (*InvoiceImportResult, error) {
	inv, err := nfe.Parse(raw)
	if err != nil {
		return nil, withFile(err, fileName)
	}

	_, exists, err := s.invoiceRepo.FindIDByAccessKey(ctx, companyID, inv.Document.AccessKey)
	if err != nil {
		return nil, models.NewPersistenceError(err).WithFile(fileName)
	}
	if exists {
		return nil, models.NewDuplicateError("document with access key " + inv.Document.AccessKey + " already imported").WithFile(fileName)
	}

	doc := inv.Document
	doc.CompanyID = companyID

	var counterpartyName string
	if inv.Counterparty != nil {
		cp := *inv.Counterparty
		cp.CompanyID = companyID
		counterpartyName = cp.Name

		id, found, err := s.counterpartyRepo.FindIDByDocument(ctx, companyID, cp.Document)
		if err != nil {
			return nil, models.NewPersistenceError(err).WithFile(fileName)
		}
		if !found {
			if err := s.counterpartyRepo.Create(ctx, &cp); err != nil {
				return nil, models.NewPersistenceError(err).WithFile(fileName)
			}
			id = cp.ID
		}
		doc.CounterpartyID = id
	}

	if err := s.invoiceRepo.CreateWithItems(ctx, &doc, inv.Items); err != nil {
		if models.IsKind(err, models.KindDuplicate) {
			return nil, withFile(err, fileName)
		}
		return nil, models.NewPersistenceError(err).WithFile(fileName)
	}

	s.log.Info().
		Str("file", fileName).
		Str("access_key", doc.AccessKey).
		Int64("invoice_id", doc.ID).
		Int("items", len(inv.Items)).
		Msg("invoice imported")

	return &InvoiceImportResult{
		InvoiceID: doc.ID,
		Summary: InvoiceSummary{
			Number:       doc.Number,
			AccessKey:    doc.AccessKey,
			IssueDate:    doc.IssueDate,
			TotalAmount:  doc.TotalAmount,
			NetAmount:    doc.NetAmount,
			ItemCount:    len(inv.Items),
			Counterparty: counterpartyName,
		},
	}, nil
}

// withFile annotates a typed import error with the source file name.
func withFile(err error, fileName string) error {
	var ie *models.ImportError
	if errors.As(err, &ie) {
		return ie.WithFile(fileName)
	}
	return err
}
