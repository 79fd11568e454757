package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	a.respondCart(w, r, http.StatusOK)
}

func (a *API) respondCart(w http.ResponseWriter, r *http.Request, code int) {
	v, err := a.carts.View(r.Context(), currentUser(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, code, toCart(v))
}

func (a *API) cartSummary(w http.ResponseWriter, r *http.Request) {
	s, err := a.carts.Summary(r.Context(), currentUser(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResp{Total: money(s.Total), Items: s.Items, Empty: s.Empty})
}

func (a *API) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		badRequest(w, "product_id is required")
		return
	}
	if err := a.carts.AddItem(r.Context(), currentUser(r), req.ProductID, req.Quantity); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondCart(w, r, http.StatusOK)
}

func (a *API) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemReq
	if !decode(w, r, &req) {
		return
	}
	if err := a.carts.UpdateQuantity(r.Context(), currentUser(r), chi.URLParam(r, "productID"), req.Quantity); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondCart(w, r, http.StatusOK)
}

func (a *API) removeCartItem(w http.ResponseWriter, r *http.Request) {
	if err := a.carts.RemoveItem(r.Context(), currentUser(r), chi.URLParam(r, "productID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondCart(w, r, http.StatusOK)
}

func (a *API) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := a.carts.Clear(r.Context(), currentUser(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
