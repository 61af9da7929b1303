package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/atriumcode/controlfinance/internal/config"
	"github.com/atriumcode/controlfinance/internal/database"
	"github.com/atriumcode/controlfinance/internal/logger"
	"github.com/atriumcode/controlfinance/internal/repositories"
	"github.com/atriumcode/controlfinance/internal/services"
)

// importctl imports NFe and OFX files from disk against the same pipeline
// the HTTP server uses, for operators and backfills.
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "importctl",
		Short: "Import fiscal documents and bank statements from files",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newNfeCommand())
	rootCmd.AddCommand(newOfxCommand())

	return rootCmd
}

func newNfeCommand() *cobra.Command {
	var companyID int64

	cmd := &cobra.Command{
		Use:   "nfe <file>...",
		Short: "Import NFe XML documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			if companyID == 0 {
				companyID = cfg.Import.DefaultCompanyID
			}

			appLog := logger.New(cfg.LogLevel)
			service := services.NewInvoiceImportService(
				repositories.NewInvoiceRepository(db),
				repositories.NewCounterpartyRepository(db),
				appLog,
			)

			failed := 0
			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}

				result, err := service.Import(cmd.Context(), companyID, filepath.Base(path), raw)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: invoice %d (number %s, %d items, total %s)\n",
					path, result.InvoiceID, result.Summary.Number,
					result.Summary.ItemCount, result.Summary.TotalAmount.StringFixed(2))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&companyID, "company", 0, "company scope for the import")
	return cmd
}

func newOfxCommand() *cobra.Command {
	var uploadedBy string

	cmd := &cobra.Command{
		Use:   "ofx <file>...",
		Short: "Import OFX bank statements",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			appLog := logger.New(cfg.LogLevel)
			service := services.NewStatementImportService(repositories.NewBankRepository(db), appLog)

			files := make([]services.FilePayload, 0, len(args))
			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				files = append(files, services.FilePayload{
					FileName: filepath.Base(path),
					Content:  raw,
				})
			}

			failed := 0
			for _, result := range service.ImportFiles(cmd.Context(), uploadedBy, files) {
				if result.Error != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", result.FileName, result.Error)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d imported, %d skipped (account %s)\n",
					result.FileName, result.Imported, result.Skipped, result.AccountID)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&uploadedBy, "user", "importctl", "uploader recorded on the import history")
	return cmd
}

func connect() (*config.Config, *sql.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.NewConnection(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return cfg, db, nil
}
