package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/MasCreaThor/testflow-auth/internal/api"
	"github.com/MasCreaThor/testflow-auth/internal/errs"
	"github.com/MasCreaThor/testflow-auth/internal/metrics"
	"github.com/MasCreaThor/testflow-auth/internal/token"
)

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, payloads carry secrets
		log.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// MetricsUnary counts calls per method and status code.
func MetricsUnary(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		m.RecordRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// AccessVerifier checks bearer access proofs.
type AccessVerifier interface {
	VerifyAccess(raw string) (token.AccessClaims, error)
}

// PermissionChecker fails with errs.ErrUnauthorized when userID lacks any of perms.
type PermissionChecker interface {
	RequirePermissions(ctx context.Context, userID uuid.UUID, perms []string) error
}

// publicMethods are reachable without an access proof.
var publicMethods = map[string]bool{
	api.FullMethod("Register"):      true,
	api.FullMethod("Login"):         true,
	api.FullMethod("Refresh"):       true,
	api.FullMethod("Logout"):        true,
	api.FullMethod("RequestReset"):  true,
	api.FullMethod("ResetPassword"): true,
}

// methodPermissions lists what the caller must hold for administrative methods.
var methodPermissions = map[string][]string{
	api.FullMethod("CreatePermission"):         {"permissions:write"},
	api.FullMethod("ListPermissions"):          {"permissions:read"},
	api.FullMethod("CreateRole"):               {"roles:write"},
	api.FullMethod("ListRoles"):                {"roles:read"},
	api.FullMethod("AddPermissionToRole"):      {"roles:write"},
	api.FullMethod("RemovePermissionFromRole"): {"roles:write"},
	api.FullMethod("AssignRole"):               {"assignments:write"},
	api.FullMethod("RemoveRole"):               {"assignments:write"},
}

// AuthUnary verifies "authorization: Bearer <proof>" on every non-public
// method, stores the subject in the context and enforces methodPermissions.
func AuthUnary(v AccessVerifier, pc PermissionChecker) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] {
			return next(ctx, req)
		}
		raw, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		claims, err := v.VerifyAccess(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, msgTokenInvalid)
		}
		ctx = WithUserID(ctx, claims.SubjectID)

		if need := methodPermissions[info.FullMethod]; len(need) > 0 {
			if err := pc.RequirePermissions(ctx, claims.SubjectID, need); err != nil {
				if errors.Is(err, errs.ErrUnauthorized) {
					return nil, status.Error(codes.PermissionDenied, msgDenied)
				}
				return nil, status.Error(codes.Internal, "internal")
			}
		}
		return next(ctx, req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
