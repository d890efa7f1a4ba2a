// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"fmt"
	"time"

	"facet/server/pipeline"
	"facet/server/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/crypto/bcrypt"
)

// Actor identifies who is running a request. Owner comes from the JWT
// subject, department from the X-Facet-Department header. Both are exposed to
// queries and scripts as fixed variables.
type Actor struct {
	Owner      string
	Department string
}

// FixedVariableNames are reserved; dashboard variables cannot shadow them.
var FixedVariableNames = []string{"department", "owner"}

// FixedVariables synthesizes the per-request variables. They are appended
// after the dashboard's own variables, so they always win on a name clash
// with an earlier plain variable.
func FixedVariables(actor Actor) []pipeline.Variable {
	return []pipeline.Variable{
		{ID: "fixed-department", Name: "department", Value: actor.Department},
		{ID: "fixed-owner", Name: "owner", Value: actor.Owner},
	}
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// ValidLogin checks the shared login token. There is a single token per
// install; the JWT subject carries the user-provided name for attribution.
func ValidLogin(app *App, token string) bool {
	return bcrypt.CompareHashAndPassword(app.LoginTokenHash, []byte(token)) == nil
}

func CreateJWT(app *App, owner string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": owner,
		"iat": now.Unix(),
		"exp": now.Add(app.JWTExp).Unix(),
	})
	signed, err := token.SignedString(app.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// LoadJWTSecret reads the signing secret from NATS KV so all nodes accept
// each other's tokens. The first node to start generates it. Losing the KV
// only invalidates active sessions.
func LoadJWTSecret(app *App) error {
	if len(app.JWTSecret) > 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	entry, err := app.ConfigKV.Get(ctx, CONFIG_KEY_JWT_SECRET)
	if err == nil {
		app.JWTSecret = entry.Value()
		return nil
	}
	if err != jetstream.ErrKeyNotFound {
		return fmt.Errorf("failed to read JWT secret from KV: %w", err)
	}
	secret := []byte(util.GenerateRandomString(64))
	// Create fails if another node won the race; read theirs instead.
	if _, err := app.ConfigKV.Create(ctx, CONFIG_KEY_JWT_SECRET, secret); err != nil {
		entry, err := app.ConfigKV.Get(ctx, CONFIG_KEY_JWT_SECRET)
		if err != nil {
			return fmt.Errorf("failed to store JWT secret: %w", err)
		}
		app.JWTSecret = entry.Value()
		return nil
	}
	app.JWTSecret = secret
	return nil
}
