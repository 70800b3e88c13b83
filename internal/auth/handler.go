package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	sm "github.com/faciam-dev/gcdisk/internal/server/middleware"
)

// Users is the subset of UserRepo the handlers need.
type Users interface {
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

// RoleLister resolves the roles of a user.
type RoleLister interface {
	RolesOf(ctx context.Context, userID int64) ([]string, error)
}

// PermissionLister resolves the effective permissions of a user.
type PermissionLister interface {
	PermissionsOf(user string) []string
}

type Handler struct {
	Users Users
	Roles RoleLister
	Perms PermissionLister
	JWT   *JWT
}

type loginBody struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"1"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type loginInput struct {
	Body loginBody
}

type loginOutput struct {
	Body tokenResponse
}

type meResponse struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	// TokenExpiresAt is when the token used for this request expires.
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

type meOutput struct {
	Body meResponse
}

// Register adds the public login endpoint.
func Register(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/v1/auth/login",
		Summary:     "Login",
		Tags:        []string{"Auth"},
	}, h.login)
}

// RegisterAuthenticated adds endpoints that need a valid token. Call it after
// the auth middleware is installed.
func RegisterAuthenticated(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "refresh",
		Method:      http.MethodPost,
		Path:        "/v1/auth/refresh",
		Summary:     "Refresh token",
		Tags:        []string{"Auth"},
	}, h.refresh)

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/v1/auth/me",
		Summary:     "Current user",
		Tags:        []string{"Auth"},
	}, h.me)
}

func (h *Handler) login(ctx context.Context, in *loginInput) (*loginOutput, error) {
	u, err := h.Users.Authenticate(ctx, in.Body.Email, in.Body.Password)
	if err != nil || u == nil {
		return nil, huma.Error401Unauthorized("invalid credentials")
	}
	return h.issue(u.ID, u.Email)
}

func (h *Handler) issue(id int64, email string) (*loginOutput, error) {
	tok, err := h.JWT.Generate(id, email)
	if err != nil {
		return nil, err
	}
	return &loginOutput{Body: tokenResponse{AccessToken: tok, ExpiresAt: time.Now().Add(h.JWT.TTL())}}, nil
}

type refreshInput struct{}

func (h *Handler) refresh(ctx context.Context, _ *refreshInput) (*loginOutput, error) {
	uid := sm.UserIDFromContext(ctx)
	if uid == 0 {
		return nil, huma.Error401Unauthorized("unauthenticated")
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, huma.Error401Unauthorized("unauthenticated")
	}
	return h.issue(u.ID, u.Email)
}

func (h *Handler) me(ctx context.Context, _ *struct{}) (*meOutput, error) {
	uid := sm.UserIDFromContext(ctx)
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, huma.Error401Unauthorized("unauthenticated")
	}
	roles := []string{}
	if h.Roles != nil {
		if roles, err = h.Roles.RolesOf(ctx, uid); err != nil {
			return nil, err
		}
	}
	perms := []string{}
	if h.Perms != nil {
		perms = h.Perms.PermissionsOf(sm.UserFromContext(ctx))
	}
	out := &meOutput{Body: meResponse{UUID: u.UUID, Name: u.Name, Email: u.Email, Roles: roles, Permissions: perms}}
	if c := ClaimsFromContext(ctx); c != nil && c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		out.Body.TokenExpiresAt = &exp
	}
	return out, nil
}
