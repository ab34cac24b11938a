// Package gwservice holds the ServiceDefinition entity, the live
// service table that the Proxy Engine resolves against, and the
// ServiceOverride payload the admin plane writes through to it.
package gwservice

import (
	"time"

	"github.com/clawguard/clawguard/internal/domain/policy"
)

// RecipeKind identifies how a credential is injected into the upstream request.
type RecipeKind string

const (
	// RecipeBearer injects "Authorization: Bearer <token>".
	RecipeBearer RecipeKind = "bearer"
	// RecipeHeader injects a custom named header with the token value.
	RecipeHeader RecipeKind = "header"
	// RecipeQuery appends a named query parameter with the token value.
	RecipeQuery RecipeKind = "query"
)

// Recipe is a ServiceDefinition's credential-injection scheme.
type Recipe struct {
	Kind  RecipeKind
	Name  string // header or query parameter name; ignored for RecipeBearer
	Token string
}

// Definition is a named routing target: an upstream base URL, an optional
// set of intercept hostnames for host-header mode, a credential recipe,
// and an ordered policy.
type Definition struct {
	Name               string
	BaseURL            string
	InterceptHostnames []string
	Recipe             Recipe
	DefaultAction      policy.Action
	Rules              []policy.Rule
}

// Override is the admin-plane payload that mutates the live service
// table. It is re-validated by the Security Guard before being merged in.
type Override struct {
	ServiceName string
	Definition  Definition
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
