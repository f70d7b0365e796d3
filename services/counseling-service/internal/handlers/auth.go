package handlers

import (
	"context"
	"net/http"

	"github.com/md-rashed-zaman/pastoralcare/libs/auth"
	"github.com/md-rashed-zaman/pastoralcare/libs/httpx"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/model"
)

type actorKey struct{}

func actorFrom(ctx context.Context) model.Actor {
	a, _ := ctx.Value(actorKey{}).(model.Actor)
	return a
}

// requireAuth verifies the bearer token and stores the acting user. Browsers
// cannot set headers on WebSocket handshakes, so those may pass the token as
// the access_token query parameter instead.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok && httpx.IsWebSocketUpgrade(r) {
			token = r.URL.Query().Get("access_token")
			ok = token != ""
		}
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			h.logger.Debug("token rejected", "err", err)
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		if claims.ChurchID == "" {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "token has no church")
			return
		}
		actor := model.Actor{
			ID:       claims.Subject,
			Role:     model.Role(claims.Role),
			Name:     claims.Name,
			Email:    claims.Email,
			ChurchID: claims.ChurchID,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}
