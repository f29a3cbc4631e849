package auth

import (
	"context"
	"net/http"
)

type ctxUserKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, u)
}

// CurrentUser returns the authenticated user, or nil for guests.
func CurrentUser(r *http.Request) *User {
	u, _ := r.Context().Value(ctxUserKey{}).(*User)
	return u
}

// userFromRequest validates the request's token and checks the user still
// exists.
func (s *Service) userFromRequest(r *http.Request) (*User, error) {
	tok := s.TokenFrom(r)
	if tok == "" {
		return nil, ErrInvalidToken
	}
	claimed, err := s.ParseToken(tok)
	if err != nil {
		return nil, err
	}
	u, err := s.FindByID(r.Context(), claimed.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return u, nil
}

// Optional decorates requests with the user when a valid token is present.
// It never rejects; used for routes where guests are allowed.
func (s *Service) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if u, err := s.userFromRequest(r); err == nil {
				r = r.WithContext(WithUser(r.Context(), u))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require enforces a valid token.
func (s *Service) Require() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := s.userFromRequest(r)
			if err != nil {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}
