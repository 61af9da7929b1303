package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/atriumcode/controlfinance/internal/services"
)

type ImportHandler struct {
	invoices   *services.InvoiceImportService
	statements *services.StatementImportService
}

func NewImportHandler(invoices *services.InvoiceImportService, statements *services.StatementImportService) *ImportHandler {
	return &ImportHandler{
		invoices:   invoices,
		statements: statements,
	}
}

type InvoiceImportRequest struct {
	CompanyID int64  `json:"company_id"`
	FileName  string `json:"file_name"`
	Content   string `json:"content"`
}

type InvoiceImportResponse struct {
	Success   bool                    `json:"success"`
	InvoiceID int64                   `json:"invoice_id"`
	Summary   services.InvoiceSummary `json:"summary"`
}

func (h *ImportHandler) ImportInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Content == "" {
		respondWithError(w, http.StatusBadRequest, "No document content provided")
		return
	}
	if req.CompanyID == 0 {
		req.CompanyID = 1
	}

	result, err := h.invoices.Import(r.Context(), req.CompanyID, req.FileName, []byte(req.Content))
	if err != nil {
		respondWithImportError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, InvoiceImportResponse{
		Success:   true,
		InvoiceID: result.InvoiceID,
		Summary:   result.Summary,
	})
}

type StatementImportRequest struct {
	UploadedBy string                 `json:"uploaded_by"`
	Files      []services.FilePayload `json:"files"`
}

type StatementImportResponse struct {
	Results []services.StatementImportResult `json:"results"`
}

// ImportStatements accepts one or more OFX payloads and returns a per-file
// result; a failing file never blocks the others.
func (h *ImportHandler) ImportStatements(w http.ResponseWriter, r *http.Request) {
	var req StatementImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(req.Files) == 0 {
		respondWithError(w, http.StatusBadRequest, "No files provided")
		return
	}
	if req.UploadedBy == "" {
		req.UploadedBy = "system"
	}

	results := h.statements.ImportFiles(r.Context(), req.UploadedBy, req.Files)

	status := http.StatusOK
	for _, res := range results {
		if res.Error != "" {
			status = http.StatusPartialContent
			break
		}
	}
	respondWithJSON(w, status, StatementImportResponse{Results: results})
}

func (h *ImportHandler) ListStatementImports(w http.ResponseWriter, r *http.Request) {
	files, err := h.statements.History(r.Context())
	if err != nil {
		respondWithImportError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, files)
}
