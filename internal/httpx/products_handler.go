package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	var f orders.ProductFilter
	if c := r.URL.Query().Get("category"); c != "" {
		cat, err := orders.ParseCategory(c)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.Category = cat
	}
	f.AvailableOnly = r.URL.Query().Get("available") == "true"

	ps, err := a.catalog.List(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProducts(ps))
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}
