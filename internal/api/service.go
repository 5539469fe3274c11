package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "testflow.auth.v1.Auth"

// FullMethod returns "/<service>/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// AuthServer is implemented by the transport adapter.
type AuthServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	Refresh(context.Context, *RefreshRequest) (*TokenResponse, error)
	Logout(context.Context, *LogoutRequest) (*Empty, error)
	RequestReset(context.Context, *RequestResetRequest) (*RequestResetResponse, error)
	ResetPassword(context.Context, *ResetPasswordRequest) (*Empty, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*Empty, error)
	Authorize(context.Context, *AuthorizeRequest) (*AuthorizeResponse, error)

	CreatePermission(context.Context, *CreatePermissionRequest) (*Permission, error)
	ListPermissions(context.Context, *ListPermissionsRequest) (*ListPermissionsResponse, error)
	CreateRole(context.Context, *CreateRoleRequest) (*Role, error)
	ListRoles(context.Context, *Empty) (*ListRolesResponse, error)
	AddPermissionToRole(context.Context, *RolePermissionsRequest) (*Role, error)
	RemovePermissionFromRole(context.Context, *RolePermissionsRequest) (*Role, error)
	AssignRole(context.Context, *AssignRoleRequest) (*Assignment, error)
	RemoveRole(context.Context, *RemoveRoleRequest) (*Empty, error)
	EffectivePermissions(context.Context, *EffectivePermissionsRequest) (*EffectivePermissionsResponse, error)
}

func unary[Req, Resp any](name string, call func(AuthServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServer), ctx, req.(*Req))
			}
			if ic == nil {
				return h(ctx, in)
			}
			return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}, h)
		},
	}
}

// ServiceDesc describes the Auth service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", AuthServer.Register),
		unary("Login", AuthServer.Login),
		unary("Refresh", AuthServer.Refresh),
		unary("Logout", AuthServer.Logout),
		unary("RequestReset", AuthServer.RequestReset),
		unary("ResetPassword", AuthServer.ResetPassword),
		unary("ChangePassword", AuthServer.ChangePassword),
		unary("Authorize", AuthServer.Authorize),
		unary("CreatePermission", AuthServer.CreatePermission),
		unary("ListPermissions", AuthServer.ListPermissions),
		unary("CreateRole", AuthServer.CreateRole),
		unary("ListRoles", AuthServer.ListRoles),
		unary("AddPermissionToRole", AuthServer.AddPermissionToRole),
		unary("RemovePermissionFromRole", AuthServer.RemovePermissionFromRole),
		unary("AssignRole", AuthServer.AssignRole),
		unary("RemoveRole", AuthServer.RemoveRole),
		unary("EffectivePermissions", AuthServer.EffectivePermissions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "testflow/auth/v1",
}

// RegisterAuthServer registers srv on s.
func RegisterAuthServer(s grpc.ServiceRegistrar, srv AuthServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// AuthClient calls the Auth service using the JSON codec.
type AuthClient struct {
	cc grpc.ClientConnInterface
}

// NewAuthClient wraps a client connection.
func NewAuthClient(cc grpc.ClientConnInterface) *AuthClient { return &AuthClient{cc: cc} }

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AuthClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterRequest, RegisterResponse](ctx, c.cc, "Register", in, opts)
}

func (c *AuthClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[LoginRequest, TokenResponse](ctx, c.cc, "Login", in, opts)
}

func (c *AuthClient) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[RefreshRequest, TokenResponse](ctx, c.cc, "Refresh", in, opts)
}

func (c *AuthClient) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[LogoutRequest, Empty](ctx, c.cc, "Logout", in, opts)
}

func (c *AuthClient) RequestReset(ctx context.Context, in *RequestResetRequest, opts ...grpc.CallOption) (*RequestResetResponse, error) {
	return invoke[RequestResetRequest, RequestResetResponse](ctx, c.cc, "RequestReset", in, opts)
}

func (c *AuthClient) ResetPassword(ctx context.Context, in *ResetPasswordRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[ResetPasswordRequest, Empty](ctx, c.cc, "ResetPassword", in, opts)
}

func (c *AuthClient) ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[ChangePasswordRequest, Empty](ctx, c.cc, "ChangePassword", in, opts)
}

func (c *AuthClient) Authorize(ctx context.Context, in *AuthorizeRequest, opts ...grpc.CallOption) (*AuthorizeResponse, error) {
	return invoke[AuthorizeRequest, AuthorizeResponse](ctx, c.cc, "Authorize", in, opts)
}

func (c *AuthClient) CreatePermission(ctx context.Context, in *CreatePermissionRequest, opts ...grpc.CallOption) (*Permission, error) {
	return invoke[CreatePermissionRequest, Permission](ctx, c.cc, "CreatePermission", in, opts)
}

func (c *AuthClient) ListPermissions(ctx context.Context, in *ListPermissionsRequest, opts ...grpc.CallOption) (*ListPermissionsResponse, error) {
	return invoke[ListPermissionsRequest, ListPermissionsResponse](ctx, c.cc, "ListPermissions", in, opts)
}

func (c *AuthClient) CreateRole(ctx context.Context, in *CreateRoleRequest, opts ...grpc.CallOption) (*Role, error) {
	return invoke[CreateRoleRequest, Role](ctx, c.cc, "CreateRole", in, opts)
}

func (c *AuthClient) ListRoles(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListRolesResponse, error) {
	return invoke[Empty, ListRolesResponse](ctx, c.cc, "ListRoles", in, opts)
}

func (c *AuthClient) AddPermissionToRole(ctx context.Context, in *RolePermissionsRequest, opts ...grpc.CallOption) (*Role, error) {
	return invoke[RolePermissionsRequest, Role](ctx, c.cc, "AddPermissionToRole", in, opts)
}

func (c *AuthClient) RemovePermissionFromRole(ctx context.Context, in *RolePermissionsRequest, opts ...grpc.CallOption) (*Role, error) {
	return invoke[RolePermissionsRequest, Role](ctx, c.cc, "RemovePermissionFromRole", in, opts)
}

func (c *AuthClient) AssignRole(ctx context.Context, in *AssignRoleRequest, opts ...grpc.CallOption) (*Assignment, error) {
	return invoke[AssignRoleRequest, Assignment](ctx, c.cc, "AssignRole", in, opts)
}

func (c *AuthClient) RemoveRole(ctx context.Context, in *RemoveRoleRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[RemoveRoleRequest, Empty](ctx, c.cc, "RemoveRole", in, opts)
}

func (c *AuthClient) EffectivePermissions(ctx context.Context, in *EffectivePermissionsRequest, opts ...grpc.CallOption) (*EffectivePermissionsResponse, error) {
	return invoke[EffectivePermissionsRequest, EffectivePermissionsResponse](ctx, c.cc, "EffectivePermissions", in, opts)
}
