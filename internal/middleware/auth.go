// Package middleware содержит HTTP middleware сервиса баллов вещевого обеспечения.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/uniform-points/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

const tokenIssuer = "uniformpoints"

type actorClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// AuthMiddleware извлекает инициатора запроса из подписанного JWT в заголовке Authorization.
// Выпуск токенов относится к внешнему слою идентификации; IssueToken нужен для служебных утилит и тестов.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет bearer-токен и добавляет model.Actor в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Требуется авторизация")
			return
		}

		actor, err := a.ParseToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Недействительный токен")
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken подписывает токен для инициатора на срок ttl.
func (a *AuthMiddleware) IssueToken(actor model.Actor, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := actorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.ID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secretKey)
}

// ParseToken проверяет подпись и срок действия токена и возвращает инициатора.
func (a *AuthMiddleware) ParseToken(raw string) (model.Actor, error) {
	claims := &actorClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return a.secretKey, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return model.Actor{}, errors.New("invalid or expired token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return model.Actor{}, errors.New("invalid token subject")
	}
	role := model.Role(claims.Role)
	if !role.IsValid() {
		return model.Actor{}, errors.New("invalid token role")
	}

	return model.Actor{ID: id, Role: role}, nil
}

// RequireRole пропускает запрос, только если роль инициатора входит в roles.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Требуется авторизация")
				return
			}
			if !slices.Contains(roles, actor.Role) {
				writeError(w, http.StatusForbidden, "forbidden", "Недостаточно прав")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorFromContext извлекает инициатора запроса из контекста.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}

// WithActor кладёт инициатора в контекст.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}
