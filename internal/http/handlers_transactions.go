package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

const transactionNotFound = "Transaction not found"

func transactionInput(body *RequestBodyParser) services.TransactionInput {
	return services.TransactionInput{
		Type:        body.Get("type"),
		Category:    body.Get("category"),
		Amount:      body.Get("amount"),
		Date:        body.Get("date"),
		Description: body.Get("description"),
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	txs, err := s.deps.Ledger.List(r.Context(), userID, parseListFilter(r.URL.Query()))
	if err != nil {
		respondError(w, r, err, transactionNotFound, applog.OpList)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionList(txs))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	body, ok := requireBody(w, r)
	if !ok {
		return
	}

	t, err := s.deps.Ledger.Create(r.Context(), userID, transactionInput(body))
	if err != nil {
		respondError(w, r, err, transactionNotFound, applog.OpCreate)
		return
	}
	s.audit.LogTransaction(r.Context(), applog.OpCreate, userID, t.ID, string(t.Type), t.Category, t.Amount.String())

	NewJSONResponse().
		Status(http.StatusCreated).
		Message("Transaction added successfully").
		Field("transaction", newTransactionResponse(t)).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}
	body, ok := requireBody(w, r)
	if !ok {
		return
	}

	t, err := s.deps.Ledger.Update(r.Context(), userID, id, transactionInput(body))
	if err != nil {
		respondError(w, r, err, transactionNotFound, applog.OpUpdate)
		return
	}
	s.audit.LogTransaction(r.Context(), applog.OpUpdate, userID, t.ID, string(t.Type), t.Category, t.Amount.String())

	NewJSONResponse().
		Message("Transaction updated successfully").
		Field("transaction", newTransactionResponse(t)).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	if err := s.deps.Ledger.Delete(r.Context(), userID, id); err != nil {
		respondError(w, r, err, transactionNotFound, applog.OpDelete)
		return
	}
	s.audit.LogTransaction(r.Context(), applog.OpDelete, userID, id, "", "", "")
	NewJSONResponse().Message("Transaction deleted successfully").Write(w)
}

// handleExportTransactions streams the filtered ledger as a CSV attachment.
// The CSV is buffered so a failure midway still yields a JSON error.
func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	n, err := s.deps.Ledger.Export(r.Context(), userID, parseListFilter(r.URL.Query()), &buf)
	if err != nil {
		respondError(w, r, err, transactionNotFound, applog.OpExport)
		return
	}

	filename := fmt.Sprintf("transactions-%d-%s.csv", userID, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("X-Row-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
