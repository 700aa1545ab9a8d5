package google

import (
	"fmt"
	"strconv"
	"strings"

	ports "fintrack/internal/sheets"
)

// parseRows converts a values matrix (as returned by Sheets API) into ledger
// rows. The header row and rows without a date are skipped.
func parseRows(values [][]any) []ports.Row {
	var out []ports.Row
	for _, raw := range values {
		cols := toStrings(raw)
		date := safeGet(cols, 0)
		if date == "" || strings.EqualFold(date, ports.Header[0]) {
			continue
		}
		userID, _ := strconv.ParseInt(safeGet(cols, 5), 10, 64)
		txID, _ := strconv.ParseInt(safeGet(cols, 6), 10, 64)
		out = append(out, ports.Row{
			Date:          date,
			Type:          safeGet(cols, 1),
			Category:      safeGet(cols, 2),
			Amount:        normalizeAmount(safeGet(cols, 3)),
			Description:   safeGet(cols, 4),
			UserID:        userID,
			TransactionID: txID,
		})
	}
	return out
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// normalizeAmount undoes locale formatting applied by USER_ENTERED input.
func normalizeAmount(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strings.ReplaceAll(s, ",", "")
}
