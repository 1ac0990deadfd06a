package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/riteshkumar/bank-ledger/internal/models"
	"github.com/riteshkumar/bank-ledger/internal/policy"
)

// Headers set by the upstream gateway once it has authenticated the user.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type callerKey struct{}

// IdentityMiddleware copies the gateway identity headers into the request
// context. A request without them carries an empty caller and is rejected by
// the policy check.
func IdentityMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := models.Caller{
				UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
				Role:   models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFrom(ctx context.Context) models.Caller {
	caller, _ := ctx.Value(callerKey{}).(models.Caller)
	return caller
}

// authorize resolves the caller and checks it may perform action.
func authorize(r *http.Request, action policy.Action) (models.Caller, error) {
	caller := CallerFrom(r.Context())
	if err := policy.Authorize(caller, action); err != nil {
		return caller, err
	}
	return caller, nil
}
