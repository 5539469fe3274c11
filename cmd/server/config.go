package main

import (
	"errors"
	"flag"
	"time"

	"github.com/MasCreaThor/testflow-auth/internal/limiter"
	"github.com/MasCreaThor/testflow-auth/internal/service"
	"github.com/MasCreaThor/testflow-auth/internal/token"
)

type config struct {
	Addr        string
	MetricsAddr string
	DSN         string

	JWTKey        string
	JWTPrivateKey string
	JWTPublicKey  string
	JWTIssuer     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
	BcryptCost    int

	TLSCert string
	TLSKey  string

	Seed          bool
	SeedTimeout   time.Duration
	AdminEmail    string
	AdminPassword string

	PurgeInterval  time.Duration
	PurgeRetention time.Duration
	Login          limiter.Policy
	Dev            bool
}

func parseFlags(fs *flag.FlagSet, args []string) (config, error) {
	var c config
	fs.StringVar(&c.Addr, "addr", ":8443", "gRPC listen address")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", ":9090", "Prometheus listen address (empty disables)")
	fs.StringVar(&c.DSN, "dsn", "", "PostgreSQL DSN (empty: in-memory stores)")
	fs.StringVar(&c.JWTKey, "jwt-key", "", "HS256 signing key")
	fs.StringVar(&c.JWTPrivateKey, "jwt-private-key", "", "RS256 private key (PEM)")
	fs.StringVar(&c.JWTPublicKey, "jwt-public-key", "", "RS256 public key (PEM)")
	fs.StringVar(&c.JWTIssuer, "jwt-issuer", "testflow-auth", "iss claim of access tokens")
	fs.DurationVar(&c.AccessTTL, "access-ttl", token.DefaultAccessTTL, "access token TTL")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", service.DefaultRefreshTTL, "refresh token TTL")
	fs.DurationVar(&c.ResetTTL, "reset-ttl", service.DefaultResetTTL, "reset token TTL")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", 0, "bcrypt cost (0: library default)")
	fs.StringVar(&c.TLSCert, "tls-cert", "", "TLS certificate (PEM)")
	fs.StringVar(&c.TLSKey, "tls-key", "", "TLS private key (PEM)")
	fs.BoolVar(&c.Seed, "seed", true, "seed builtin permissions and the admin role")
	fs.DurationVar(&c.SeedTimeout, "seed-timeout", 5*time.Second, "seeding deadline")
	fs.StringVar(&c.AdminEmail, "admin-email", "", "bootstrap administrator email")
	fs.StringVar(&c.AdminPassword, "admin-password", "", "bootstrap administrator password")
	fs.DurationVar(&c.PurgeInterval, "purge-interval", time.Hour, "expired token purge interval (0 disables)")
	fs.DurationVar(&c.PurgeRetention, "purge-retention", service.DefaultPurgeRetention, "how long expired tokens are kept before purging")
	fs.DurationVar(&c.Login.Window, "login-window", limiter.DefaultPolicy.Window, "failed login window")
	fs.IntVar(&c.Login.MaxFails, "login-max-fails", limiter.DefaultPolicy.MaxFails, "failed logins per window before blocking")
	fs.DurationVar(&c.Login.BlockFor, "login-block", limiter.DefaultPolicy.BlockFor, "block duration")
	fs.BoolVar(&c.Dev, "dev", false, "enable server reflection (dev only)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	return c, c.validate()
}

func (c config) validate() error {
	rsa := c.JWTPrivateKey != "" || c.JWTPublicKey != ""
	switch {
	case c.JWTKey == "" && !rsa:
		return errors.New("either -jwt-key or -jwt-private-key/-jwt-public-key is required")
	case c.JWTKey != "" && rsa:
		return errors.New("-jwt-key and RS256 keys are mutually exclusive")
	case rsa && (c.JWTPrivateKey == "" || c.JWTPublicKey == ""):
		return errors.New("both -jwt-private-key and -jwt-public-key are required")
	case (c.TLSCert == "") != (c.TLSKey == ""):
		return errors.New("-tls-cert and -tls-key go together")
	case c.AdminEmail != "" && len(c.AdminPassword) < service.MinSecretLength:
		return errors.New("-admin-password is too short")
	case c.PurgeRetention < 0:
		return errors.New("-purge-retention must not be negative")
	}
	return nil
}

func (c config) signer() (*token.Signer, error) {
	opts := []token.Option{token.WithTTL(c.AccessTTL), token.WithIssuer(c.JWTIssuer)}
	if c.JWTKey != "" {
		return token.NewHS256([]byte(c.JWTKey), opts...)
	}
	return token.NewRS256FromFiles(c.JWTPrivateKey, c.JWTPublicKey, opts...)
}
