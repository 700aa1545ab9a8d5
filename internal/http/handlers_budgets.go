package http

import (
	"net/http"

	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

const budgetNotFound = "Budget not found"

func budgetInput(body *RequestBodyParser) services.BudgetInput {
	return services.BudgetInput{
		Category: body.Get("category"),
		Amount:   body.Get("amount"),
	}
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	budgets, err := s.deps.Budgets.List(r.Context(), userID)
	if err != nil {
		respondError(w, r, err, budgetNotFound, applog.OpList)
		return
	}
	writeJSON(w, http.StatusOK, newBudgetList(budgets))
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	body, ok := requireBody(w, r)
	if !ok {
		return
	}

	b, err := s.deps.Budgets.Create(r.Context(), userID, budgetInput(body))
	if err != nil {
		respondError(w, r, err, budgetNotFound, applog.OpCreate)
		return
	}
	s.audit.LogBudget(r.Context(), applog.OpCreate, userID, b.ID, b.Category, b.Amount.String())

	NewJSONResponse().
		Status(http.StatusCreated).
		Message("Budget created successfully").
		Field("budget", newBudgetResponse(b)).
		Write(w)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "budgetId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid budget id")
		return
	}
	body, ok := requireBody(w, r)
	if !ok {
		return
	}

	b, err := s.deps.Budgets.Update(r.Context(), userID, id, budgetInput(body))
	if err != nil {
		respondError(w, r, err, budgetNotFound, applog.OpUpdate)
		return
	}
	s.audit.LogBudget(r.Context(), applog.OpUpdate, userID, b.ID, b.Category, b.Amount.String())

	NewJSONResponse().
		Message("Budget updated successfully").
		Field("budget", newBudgetResponse(b)).
		Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "budgetId")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid budget id")
		return
	}

	if err := s.deps.Budgets.Delete(r.Context(), userID, id); err != nil {
		respondError(w, r, err, budgetNotFound, applog.OpDelete)
		return
	}
	s.audit.LogBudget(r.Context(), applog.OpDelete, userID, id, "", "")
	NewJSONResponse().Message("Budget deleted successfully").Write(w)
}

func (s *Server) handleGetTotalBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	total, err := s.deps.Budgets.TotalBudget(r.Context(), userID)
	if err != nil {
		respondError(w, r, err, budgetNotFound, applog.OpRead)
		return
	}
	NewJSONResponse().Field("totalBudget", total).Write(w)
}

func (s *Server) handleSetTotalBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	body, ok := requireBody(w, r)
	if !ok {
		return
	}

	total, err := s.deps.Budgets.SetTotalBudget(r.Context(), userID, body.Get("totalBudget"))
	if err != nil {
		respondError(w, r, err, budgetNotFound, applog.OpUpsert)
		return
	}

	NewJSONResponse().
		Message("Total budget updated successfully").
		Field("totalBudget", total).
		Write(w)
}
