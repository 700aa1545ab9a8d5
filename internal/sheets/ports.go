package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter mirrors ledger entries to an external spreadsheet.
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	// LedgerReader reads back the mirrored rows of one year.
	LedgerReader interface {
		ListRows(ctx context.Context, year int) ([]Row, error)
	}
)

// Row is one mirrored ledger line as stored in the sheet.
type Row struct {
	Date          string
	Type          string
	Category      string
	Amount        string
	Description   string
	UserID        int64
	TransactionID int64
}

// Header is the column layout of the ledger sheet.
var Header = []string{"Date", "Type", "Category", "Amount", "Description", "User", "Transaction"}

// RowFromTransaction renders a transaction in sheet column order.
func RowFromTransaction(t core.Transaction) Row {
	return Row{
		Date:          t.Date.String(),
		Type:          string(t.Type),
		Category:      t.Category,
		Amount:        t.Amount.StringFixed(2),
		Description:   t.Description,
		UserID:        t.UserID,
		TransactionID: t.ID,
	}
}
