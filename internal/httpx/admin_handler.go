package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

type statusReq struct {
	Status string `json:"status"`
}

type createProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
}

type priceReq struct {
	Price decimal.Decimal `json:"price"`
}

type stockReq struct {
	Stock *int `json:"stock"`
}

// adminListOrders filters by ?status= and the [from, to) window given as
// RFC 3339 timestamps. Without filters every order is returned.
func (a *API) adminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		status   orders.Status
		from, to time.Time
		err      error
	)
	if s := q.Get("status"); s != "" {
		if status, err = orders.ParseStatus(s); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	if from, err = parseTime(q.Get("from")); err != nil {
		badRequest(w, "from: "+err.Error())
		return
	}
	if to, err = parseTime(q.Get("to")); err != nil {
		badRequest(w, "to: "+err.Error())
		return
	}

	var list []orders.Order
	switch {
	case !from.IsZero() || !to.IsZero():
		list, err = a.orders.ListBetween(r.Context(), from, to)
	case status != "":
		list, err = a.orders.ListByStatus(r.Context(), status)
	default:
		list, err = a.orders.ListAll(r.Context())
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if status != "" {
		kept := list[:0]
		for _, o := range list {
			if o.Status == status {
				kept = append(kept, o)
			}
		}
		list = kept
	}
	writeJSON(w, http.StatusOK, toOrders(list))
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (a *API) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if !decode(w, r, &req) {
		return
	}
	st, err := orders.ParseStatus(req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	o, err := a.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), st)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (a *API) adminStats(w http.ResponseWriter, r *http.Request) {
	rev, err := a.orders.Revenue(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	counts, err := a.orders.Counts(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResp{Revenue: money(rev), Counts: counts})
}

func (a *API) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if !decode(w, r, &req) {
		return
	}
	p, err := a.catalog.Create(r.Context(), catalog.NewProduct{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    orders.Category(req.Category),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProduct(p))
}

func (a *API) adminSetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceReq
	if !decode(w, r, &req) {
		return
	}
	p, err := a.catalog.SetPrice(r.Context(), chi.URLParam(r, "id"), req.Price)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (a *API) adminSetStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if !decode(w, r, &req) {
		return
	}
	if req.Stock == nil {
		badRequest(w, "stock is required")
		return
	}
	p, err := a.catalog.SetStock(r.Context(), chi.URLParam(r, "id"), *req.Stock)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (a *API) adminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) adminLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := a.lowStock
	if s := r.URL.Query().Get("threshold"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(w, "threshold must be a positive integer")
			return
		}
		threshold = n
	}
	ps, err := a.catalog.LowStock(r.Context(), threshold)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProducts(ps))
}
