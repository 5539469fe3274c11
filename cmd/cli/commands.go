package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/MasCreaThor/testflow-auth/internal/api"
)

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"register":      cmdRegister,
	"login":         cmdLogin,
	"refresh":       cmdRefresh,
	"logout":        cmdLogout,
	"reset-request": cmdResetRequest,
	"reset":         cmdReset,
	"passwd":        cmdPasswd,
	"whoami":        cmdWhoami,
	"can":           cmdCan,
	"perm-add":      cmdPermAdd,
	"perms":         cmdPerms,
	"role-add":      cmdRoleAdd,
	"roles":         cmdRoles,
	"role-grant":    cmdRoleGrant,
	"role-revoke":   cmdRoleRevoke,
	"assign":        cmdAssign,
	"unassign":      cmdUnassign,
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func storeTokens(t *api.TokenResponse) error {
	return saveSession(session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt,
		UserID:       t.UserID,
	})
}

// authed returns a client carrying the saved access token, refreshing it first
// when it is about to expire.
func (e *env) authed(ctx context.Context) (*grpc.ClientConn, *api.AuthClient, error) {
	s, err := loadSession()
	if err != nil {
		return nil, nil, err
	}
	if !s.fresh(e.now()) {
		if s.RefreshToken == "" {
			return nil, nil, errNoSession
		}
		cc, cl, err := e.dial("")
		if err != nil {
			return nil, nil, err
		}
		tok, err := cl.Refresh(ctx, &api.RefreshRequest{RefreshToken: s.RefreshToken})
		_ = cc.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("refresh session: %w", err)
		}
		if err := storeTokens(tok); err != nil {
			return nil, nil, err
		}
		s.AccessToken = tok.AccessToken
	}
	return e.dial(s.AccessToken)
}

func cmdRegister(ctx context.Context, e *env, args []string) error {
	fs := newFlags("register")
	email := fs.String("e", "", "email")
	pass := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *pass == "" {
		return errors.New("need -e and -p")
	}
	cc, cl, err := e.dial("")
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cl.Register(ctx, &api.RegisterRequest{Email: *email, Password: *pass})
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, resp.UserID)
	return nil
}

func cmdLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlags("login")
	email := fs.String("e", "", "email")
	pass := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *pass == "" {
		return errors.New("need -e and -p")
	}
	cc, cl, err := e.dial("")
	if err != nil {
		return err
	}
	defer cc.Close()
	tok, err := cl.Login(ctx, &api.LoginRequest{Email: *email, Password: *pass})
	if err != nil {
		return err
	}
	if err := storeTokens(tok); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "logged in as %s, access token valid until %s\n", tok.UserID, tok.ExpiresAt.Format(time.RFC3339))
	return nil
}

func cmdRefresh(ctx context.Context, e *env, _ []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	cc, cl, err := e.dial("")
	if err != nil {
		return err
	}
	defer cc.Close()
	tok, err := cl.Refresh(ctx, &api.RefreshRequest{RefreshToken: s.RefreshToken})
	if err != nil {
		return err
	}
	if err := storeTokens(tok); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "refreshed, valid until %s\n", tok.ExpiresAt.Format(time.RFC3339))
	return nil
}

func cmdLogout(ctx context.Context, e *env, _ []string) error {
	s, err := loadSession()
	if errors.Is(err, errNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.RefreshToken != "" {
		cc, cl, err := e.dial("")
		if err != nil {
			return err
		}
		defer cc.Close()
		if _, err := cl.Logout(ctx, &api.LogoutRequest{RefreshToken: s.RefreshToken}); err != nil {
			return err
		}
	}
	return clearSession()
}

func cmdResetRequest(ctx context.Context, e *env, args []string) error {
	fs := newFlags("reset-request")
	email := fs.String("e", "", "email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("need -e")
	}
	cc, cl, err := e.dial("")
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cl.RequestReset(ctx, &api.RequestResetRequest{Email: *email})
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, resp.Message)
	return nil
}

func cmdReset(ctx context.Context, e *env, args []string) error {
	fs := newFlags("reset")
	tok := fs.String("token", "", "reset token")
	pass := fs.String("p", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tok == "" || *pass == "" {
		return errors.New("need -token and -p")
	}
	cc, cl, err := e.dial("")
	if err != nil {
		return err
	}
	defer cc.Close()
	if _, err := cl.ResetPassword(ctx, &api.ResetPasswordRequest{ResetToken: *tok, NewPassword: *pass}); err != nil {
		return err
	}
	// every refresh token is gone server-side
	return clearSession()
}

func cmdPasswd(ctx context.Context, e *env, args []string) error {
	fs := newFlags("passwd")
	oldP := fs.String("old", "", "current password")
	newP := fs.String("new", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *oldP == "" || *newP == "" {
		return errors.New("need -old and -new")
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	if _, err := cl.ChangePassword(ctx, &api.ChangePasswordRequest{OldPassword: *oldP, NewPassword: *newP}); err != nil {
		return err
	}
	return clearSession()
}

func cmdWhoami(ctx context.Context, e *env, args []string) error {
	fs := newFlags("whoami")
	user := fs.String("user", "", "another user id (needs users:read)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cl.EffectivePermissions(ctx, &api.EffectivePermissionsRequest{UserID: *user})
	if err != nil {
		return err
	}
	printJSON(e.out, resp)
	return nil
}

func cmdCan(ctx context.Context, e *env, args []string) error {
	fs := newFlags("can")
	perms := fs.String("perm", "", "comma separated permissions")
	user := fs.String("user", "", "another user id (needs users:read)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cl.Authorize(ctx, &api.AuthorizeRequest{UserID: *user, Permissions: splitList(*perms)})
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, resp.Allowed)
	return nil
}

func cmdPermAdd(ctx context.Context, e *env, args []string) error {
	fs := newFlags("perm-add")
	name := fs.String("name", "", "resource:action")
	desc := fs.String("desc", "", "description")
	group := fs.String("group", "", "group")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	p, err := cl.CreatePermission(ctx, &api.CreatePermissionRequest{Name: *name, Description: *desc, Group: *group})
	if err != nil {
		return err
	}
	printJSON(e.out, p)
	return nil
}

func cmdPerms(ctx context.Context, e *env, args []string) error {
	fs := newFlags("perms")
	group := fs.String("group", "", "filter by group")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cl.ListPermissions(ctx, &api.ListPermissionsRequest{Group: *group})
	if err != nil {
		return err
	}
	printJSON(e.out, resp.Permissions)
	return nil
}

func cmdRoleAdd(ctx context.Context, e *env, args []string) error {
	fs := newFlags("role-add")
	name := fs.String("name", "", "role name")
	desc := fs.String("desc", "", "description")
	perms := fs.String("perms", "", "comma separated permissions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	r, err := cl.CreateRole(ctx, &api.CreateRoleRequest{Name: *name, Description: *desc, Permissions: splitList(*perms)})
	if err != nil {
		return err
	}
	printJSON(e.out, r)
	return nil
}

func cmdRoles(ctx context.Context, e *env, _ []string) error {
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	resp, err := cl.ListRoles(ctx, &api.Empty{})
	if err != nil {
		return err
	}
	printJSON(e.out, resp.Roles)
	return nil
}

func rolePerms(name string, args []string) (*api.RolePermissionsRequest, error) {
	fs := newFlags(name)
	role := fs.String("role", "", "role id")
	perms := fs.String("perms", "", "comma separated permissions")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *role == "" || *perms == "" {
		return nil, errors.New("need -role and -perms")
	}
	return &api.RolePermissionsRequest{RoleID: *role, Permissions: splitList(*perms)}, nil
}

func cmdRoleGrant(ctx context.Context, e *env, args []string) error {
	req, err := rolePerms("role-grant", args)
	if err != nil {
		return err
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	r, err := cl.AddPermissionToRole(ctx, req)
	if err != nil {
		return err
	}
	printJSON(e.out, r)
	return nil
}

func cmdRoleRevoke(ctx context.Context, e *env, args []string) error {
	req, err := rolePerms("role-revoke", args)
	if err != nil {
		return err
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	r, err := cl.RemovePermissionFromRole(ctx, req)
	if err != nil {
		return err
	}
	printJSON(e.out, r)
	return nil
}

func cmdAssign(ctx context.Context, e *env, args []string) error {
	fs := newFlags("assign")
	user := fs.String("user", "", "user id")
	role := fs.String("role", "", "role id")
	ttl := fs.Duration("ttl", 0, "assignment lifetime (0: no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := &api.AssignRoleRequest{UserID: *user, RoleID: *role}
	if *ttl > 0 {
		exp := e.now().Add(*ttl).UTC()
		req.ExpiresAt = &exp
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	a, err := cl.AssignRole(ctx, req)
	if err != nil {
		return err
	}
	printJSON(e.out, a)
	return nil
}

func cmdUnassign(ctx context.Context, e *env, args []string) error {
	fs := newFlags("unassign")
	user := fs.String("user", "", "user id")
	role := fs.String("role", "", "role id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, cl, err := e.authed(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()
	_, err = cl.RemoveRole(ctx, &api.RemoveRoleRequest{UserID: *user, RoleID: *role})
	return err
}
