package api

import (
	"net/http"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/shopspring/decimal"
)

type schedulerRequest struct {
	transactionRequest
	Type       domain.SchedulerType `json:"type"`
	Recurrence *int                 `json:"recurrence"`
	StartNow   bool                 `json:"start_now"`
}

func (h *Handler) readScheduler(r *http.Request) (*domain.Scheduler, bool, error) {
	var req schedulerRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, false, err
	}
	t, err := req.transaction()
	if err != nil {
		return nil, false, err
	}
	if t.TagID != nil {
		if err := h.Tags.CheckVisible(r.Context(), userID(r), *t.TagID); err != nil {
			return nil, false, err
		}
	}
	return &domain.Scheduler{
		Label:         t.Label,
		Date:          t.Date,
		Amount:        t.Amount,
		Status:        t.Status,
		Reconciled:    t.Reconciled,
		PaymentMethod: t.PaymentMethod,
		Memo:          t.Memo,
		TagID:         t.TagID,
		Type:          req.Type,
		Recurrence:    req.Recurrence,
	}, req.StartNow, nil
}

// scheduler resolves the {id} template and its account for the caller.
func (h *Handler) scheduler(w http.ResponseWriter, r *http.Request) (*domain.Account, *domain.Scheduler, bool) {
	sc, err := h.Store.GetScheduler(r.Context(), pathID(r, "id"))
	if err != nil {
		h.respondWithErr(w, r, err)
		return nil, nil, false
	}
	a, err := h.Accounts.ForUser(r.Context(), userID(r), sc.AccountID)
	if err != nil {
		h.respondWithErr(w, r, err)
		return nil, nil, false
	}
	return a, sc, true
}

func (h *Handler) ListSchedulersHandler(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	schedulers, err := h.Schedulers.List(r.Context(), a)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if schedulers == nil {
		schedulers = []domain.Scheduler{}
	}
	summary, err := h.Schedulers.Summary(r.Context(), a)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"schedulers": schedulers, "summary": summary})
}

func (h *Handler) CreateSchedulerHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAddScheduler) {
		return
	}
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	sc, startNow, err := h.readScheduler(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if err := h.Schedulers.Create(r.Context(), a, sc, startNow); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, sc)
}

func (h *Handler) GetSchedulerHandler(w http.ResponseWriter, r *http.Request) {
	if _, sc, ok := h.scheduler(w, r); ok {
		respondWithJSON(w, http.StatusOK, sc)
	}
}

func (h *Handler) UpdateSchedulerHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermChangeScheduler) {
		return
	}
	a, cur, ok := h.scheduler(w, r)
	if !ok {
		return
	}
	sc, _, err := h.readScheduler(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	sc.ID = cur.ID
	if err := h.Schedulers.Update(r.Context(), a, sc); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sc)
}

func (h *Handler) DeleteSchedulerHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermDeleteScheduler) {
		return
	}
	a, sc, ok := h.scheduler(w, r)
	if !ok {
		return
	}
	if err := h.Schedulers.Delete(r.Context(), a, sc.ID); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CloneSchedulerHandler clones one template right away, due or not.
func (h *Handler) CloneSchedulerHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAddTransaction) {
		return
	}
	a, sc, ok := h.scheduler(w, r)
	if !ok {
		return
	}
	if err := h.Schedulers.Clone(r.Context(), sc); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	balance, err := h.Store.GetBalance(r.Context(), a.ID)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, struct {
		Scheduler *domain.Scheduler `json:"scheduler"`
		Balance   decimal.Decimal   `json:"balance"`
	}{sc, balance})
}

func (h *Handler) ResetSchedulerHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermChangeScheduler) {
		return
	}
	a, cur, ok := h.scheduler(w, r)
	if !ok {
		return
	}
	sc, err := h.Schedulers.Reset(r.Context(), a, cur.ID)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sc)
}
