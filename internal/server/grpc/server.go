// Package grpcserver exposes the auth service over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/MasCreaThor/testflow-auth/internal/api"
	"github.com/MasCreaThor/testflow-auth/internal/convert"
	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/model"
	"github.com/MasCreaThor/testflow-auth/internal/notify"
	"github.com/MasCreaThor/testflow-auth/internal/service"
)

const (
	msgTokenInvalid = "token invalid or expired"
	msgCredentials  = "invalid credentials"
	msgDenied       = "permission denied"
	msgResetSent    = "if the account exists, reset instructions have been sent"

	permUsersRead = "users:read"
)

// Registry is the subset of the role/permission registry the server calls.
type Registry interface {
	CreatePermission(ctx context.Context, name, description, group string) (*model.Permission, error)
	ListPermissions(ctx context.Context, group string) ([]model.Permission, error)
	CreateRole(ctx context.Context, name, description string, permissions []string) (*model.Role, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
	AddPermissionToRole(ctx context.Context, roleID uuid.UUID, names ...string) (*model.Role, error)
	RemovePermissionFromRole(ctx context.Context, roleID uuid.UUID, names ...string) (*model.Role, error)
}

// Authorizer is the subset of the permission resolver the server calls.
type Authorizer interface {
	PermissionChecker
	AssignRole(ctx context.Context, userID, roleID uuid.UUID, expiresAt *time.Time, grantedBy *uuid.UUID) (*model.UserRoleAssignment, error)
	RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error
	EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Server wires services into gRPC handlers.
type Server struct {
	auth     service.AuthService
	registry Registry
	authz    Authorizer
	notifier notify.Notifier
	log      *zap.Logger
}

var _ api.AuthServer = (*Server)(nil)

// New constructs a gRPC server with injected services. A nil notifier or
// logger is replaced by a logging notifier and a no-op logger.
func New(auth service.AuthService, registry Registry, authz Authorizer, notifier notify.Notifier, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Server{auth: auth, registry: registry, authz: authz, notifier: notifier, log: log}
}

// toStatus maps domain errors to gRPC status. Token outcomes collapse into one message.
func (s *Server) toStatus(op string, err error) error {
	var missing *errs.MissingReferencesError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, msgCredentials)
	case errs.IsTokenError(err):
		return status.Error(codes.Unauthenticated, msgTokenInvalid)
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, msgDenied)
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "too many failed attempts")
	case errors.Is(err, errs.ErrConflict):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.As(err, &missing):
		return status.Error(codes.InvalidArgument, missing.Error())
	case errors.Is(err, errs.ErrNotFoundReference), errors.Is(err, errs.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	default:
		s.log.Error("request failed", zap.String("op", op), zap.Error(err))
		return status.Error(codes.Internal, "internal")
	}
}

func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// subject resolves the user a query is about. Asking about someone else
// requires users:read.
func (s *Server) subject(ctx context.Context, raw string) (uuid.UUID, error) {
	me, err := callerID(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if raw == "" {
		return me, nil
	}
	target, err := convert.ParseID("user_id", raw)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if target == me {
		return me, nil
	}
	if err := s.authz.RequirePermissions(ctx, me, []string{permUsersRead}); err != nil {
		return uuid.Nil, s.toStatus("subject", err)
	}
	return target, nil
}

// --- Auth ---

// Register creates a new credential.
func (s *Server) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty email/password")
	}
	id, err := s.auth.Register(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus("register", err)
	}
	return &api.RegisterResponse{UserID: id.String()}, nil
}

// Login authenticates and returns a token pair.
func (s *Server) Login(ctx context.Context, req *api.LoginRequest) (*api.TokenResponse, error) {
	tok, err := s.auth.Login(ctx, req.Email, req.Password, remoteIP(ctx))
	if err != nil {
		return nil, s.toStatus("login", err)
	}
	return convert.ToAPITokens(tok), nil
}

// Refresh redeems a refresh token for a new pair.
func (s *Server) Refresh(ctx context.Context, req *api.RefreshRequest) (*api.TokenResponse, error) {
	tok, err := s.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus("refresh", err)
	}
	return convert.ToAPITokens(tok), nil
}

func (s *Server) Logout(ctx context.Context, req *api.LogoutRequest) (*api.Empty, error) {
	if err := s.auth.Logout(ctx, req.RefreshToken); err != nil {
		return nil, s.toStatus("logout", err)
	}
	return &api.Empty{}, nil
}

// RequestReset answers the same way for known and unknown emails.
func (s *Server) RequestReset(ctx context.Context, req *api.RequestResetRequest) (*api.RequestResetResponse, error) {
	if req.Email == "" {
		return nil, status.Error(codes.InvalidArgument, "empty email")
	}
	tok, sub, err := s.auth.RequestReset(ctx, req.Email)
	switch {
	case err == nil:
		if nerr := s.notifier.PasswordReset(ctx, req.Email, sub, tok); nerr != nil {
			s.log.Error("reset notification failed", zap.String("subject_id", sub.String()), zap.Error(nerr))
		}
	case errors.Is(err, errs.ErrNotFound):
		// unknown email, same answer
	default:
		return nil, s.toStatus("request reset", err)
	}
	return &api.RequestResetResponse{Message: msgResetSent}, nil
}

func (s *Server) ResetPassword(ctx context.Context, req *api.ResetPasswordRequest) (*api.Empty, error) {
	if err := s.auth.ResetPassword(ctx, req.ResetToken, req.NewPassword); err != nil {
		return nil, s.toStatus("reset password", err)
	}
	return &api.Empty{}, nil
}

func (s *Server) ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (*api.Empty, error) {
	me, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.ChangePassword(ctx, me, req.OldPassword, req.NewPassword); err != nil {
		return nil, s.toStatus("change password", err)
	}
	return &api.Empty{}, nil
}

// Authorize reports whether the subject holds every requested permission.
func (s *Server) Authorize(ctx context.Context, req *api.AuthorizeRequest) (*api.AuthorizeResponse, error) {
	target, err := s.subject(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	ok, err := s.auth.Authorize(ctx, target, req.Permissions)
	if err != nil {
		return nil, s.toStatus("authorize", err)
	}
	return &api.AuthorizeResponse{Allowed: ok}, nil
}

// --- Registry ---

func (s *Server) CreatePermission(ctx context.Context, req *api.CreatePermissionRequest) (*api.Permission, error) {
	p, err := s.registry.CreatePermission(ctx, req.Name, req.Description, req.Group)
	if err != nil {
		return nil, s.toStatus("create permission", err)
	}
	out := convert.ToAPIPermission(*p)
	return &out, nil
}

func (s *Server) ListPermissions(ctx context.Context, req *api.ListPermissionsRequest) (*api.ListPermissionsResponse, error) {
	ps, err := s.registry.ListPermissions(ctx, req.Group)
	if err != nil {
		return nil, s.toStatus("list permissions", err)
	}
	return &api.ListPermissionsResponse{Permissions: convert.ToAPIPermissions(ps)}, nil
}

func (s *Server) CreateRole(ctx context.Context, req *api.CreateRoleRequest) (*api.Role, error) {
	r, err := s.registry.CreateRole(ctx, req.Name, req.Description, req.Permissions)
	if err != nil {
		return nil, s.toStatus("create role", err)
	}
	out := convert.ToAPIRole(*r)
	return &out, nil
}

func (s *Server) ListRoles(ctx context.Context, _ *api.Empty) (*api.ListRolesResponse, error) {
	rs, err := s.registry.ListRoles(ctx)
	if err != nil {
		return nil, s.toStatus("list roles", err)
	}
	return &api.ListRolesResponse{Roles: convert.ToAPIRoles(rs)}, nil
}

func (s *Server) AddPermissionToRole(ctx context.Context, req *api.RolePermissionsRequest) (*api.Role, error) {
	id, err := convert.ParseID("role_id", req.RoleID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	r, err := s.registry.AddPermissionToRole(ctx, id, req.Permissions...)
	if err != nil {
		return nil, s.toStatus("add permissions", err)
	}
	out := convert.ToAPIRole(*r)
	return &out, nil
}

func (s *Server) RemovePermissionFromRole(ctx context.Context, req *api.RolePermissionsRequest) (*api.Role, error) {
	id, err := convert.ParseID("role_id", req.RoleID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	r, err := s.registry.RemovePermissionFromRole(ctx, id, req.Permissions...)
	if err != nil {
		return nil, s.toStatus("remove permissions", err)
	}
	out := convert.ToAPIRole(*r)
	return &out, nil
}

// --- Assignments ---

// AssignRole grants a role; the caller is recorded as grantor.
func (s *Server) AssignRole(ctx context.Context, req *api.AssignRoleRequest) (*api.Assignment, error) {
	me, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := convert.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	roleID, err := convert.ParseID("role_id", req.RoleID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	a, err := s.authz.AssignRole(ctx, userID, roleID, req.ExpiresAt, &me)
	if err != nil {
		return nil, s.toStatus("assign role", err)
	}
	out := convert.ToAPIAssignment(*a)
	return &out, nil
}

func (s *Server) RemoveRole(ctx context.Context, req *api.RemoveRoleRequest) (*api.Empty, error) {
	userID, err := convert.ParseID("user_id", req.UserID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	roleID, err := convert.ParseID("role_id", req.RoleID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.authz.RemoveRole(ctx, userID, roleID); err != nil {
		return nil, s.toStatus("remove role", err)
	}
	return &api.Empty{}, nil
}

// EffectivePermissions lists what the subject currently holds; admins get ["*"].
func (s *Server) EffectivePermissions(ctx context.Context, req *api.EffectivePermissionsRequest) (*api.EffectivePermissionsResponse, error) {
	target, err := s.subject(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	perms, err := s.authz.EffectivePermissions(ctx, target)
	if err != nil {
		return nil, s.toStatus("effective permissions", err)
	}
	if perms == nil {
		perms = []string{}
	}
	return &api.EffectivePermissionsResponse{Permissions: perms}, nil
}
