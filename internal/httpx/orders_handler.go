package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	o, err := a.orders.Checkout(r.Context(), currentUser(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusCreated, toOrder(o))
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.orders.ListByUser(r.Context(), currentUser(r).ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.orders.GetForUser(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

// getOrderStatus answers from the cache when it can; a miss falls back to
// the store and fills the cache.
func (a *API) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := currentUser(r)
	ctx := r.Context()

	if a.status != nil {
		s, ok, err := a.status.Get(ctx, id)
		if err != nil {
			a.log.WithError(err).WithField("order_id", id).Warn("status cache get")
		}
		if ok && (s.UserID == user.ID || user.IsAdmin()) {
			writeJSON(w, http.StatusOK, statusResp{OrderID: s.OrderID, Status: s.Status, UpdatedAt: s.UpdatedAt, Cached: true})
			return
		}
	}

	o, err := a.orders.GetForUser(ctx, user, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusResp{OrderID: o.ID, Status: o.Status, UpdatedAt: o.UpdatedAt})
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.orders.GetForUser(r.Context(), currentUser(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.orders.Cancel(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.dropStatus(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}
