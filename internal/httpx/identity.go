package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

const HeaderUserID = "X-User-ID"

type ctxKey struct{}

// UserFinder resolves the caller. orders.Store satisfies it.
type UserFinder interface {
	FindUser(ctx context.Context, id string) (orders.User, error)
}

// identify resolves X-User-ID to a user. Disabled accounts are rejected.
func (a *API) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderUserID)
		if id == "" {
			a.writeError(w, r, errUnauthenticated)
			return
		}
		u, err := a.users.FindUser(r.Context(), id)
		if errors.Is(err, orders.ErrNotFound) {
			a.writeError(w, r, errUnauthenticated)
			return
		}
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if u.Disabled {
			a.writeError(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func (a *API) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !currentUser(r).IsAdmin() {
			a.writeError(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) orders.User {
	u, _ := r.Context().Value(ctxKey{}).(orders.User)
	return u
}
