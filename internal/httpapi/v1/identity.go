package v1

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// Identity is the user and shop every call is made for.
type Identity struct {
    UserID string
    ShopID string
}

// Claims are the bearer token claims: sub is the user, shop_id the shop.
type Claims struct {
    ShopID string `json:"shop_id"`
    jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for the identity.
func IssueToken(secret string, id Identity, ttl time.Duration) (string, error) {
    now := time.Now()
    claims := Claims{
        ShopID: id.ShopID,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   id.UserID,
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
        },
    }
    return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseBearerToken(r *http.Request) (string, bool) {
    h := r.Header.Get("Authorization")
    if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") { return "", false }
    return strings.TrimSpace(h[7:]), true
}

func verifyToken(raw, secret string) (Identity, error) {
    var claims Claims
    _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil { return Identity{}, err }
    if claims.Subject == "" || claims.ShopID == "" {
        return Identity{}, errors.New("token missing sub or shop_id")
    }
    return Identity{UserID: claims.Subject, ShopID: claims.ShopID}, nil
}

// identity resolves the caller. With a secret it requires a valid bearer
// token; without one it trusts X-User-ID and X-Shop-ID set by the host app.
func identity(secret string) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            var id Identity
            if secret != "" {
                tok, ok := parseBearerToken(r)
                if !ok { writeErr(w, http.StatusUnauthorized, "missing bearer token", "unauthorized"); return }
                v, err := verifyToken(tok, secret)
                if err != nil { writeErr(w, http.StatusUnauthorized, "invalid token", "unauthorized"); return }
                id = v
            } else {
                id = Identity{UserID: r.Header.Get("X-User-ID"), ShopID: r.Header.Get("X-Shop-ID")}
                if id.UserID == "" || id.ShopID == "" {
                    writeErr(w, http.StatusUnauthorized, "X-User-ID and X-Shop-ID are required", "unauthorized")
                    return
                }
            }
            if t := traceFrom(r.Context()); t != nil { t.userID, t.shopID = id.UserID, id.ShopID }
            next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyIdentity, id)))
        })
    }
}

func identityFrom(ctx context.Context) Identity {
    id, _ := ctx.Value(ctxKeyIdentity).(Identity)
    return id
}
