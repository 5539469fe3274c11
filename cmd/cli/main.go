// Command authctl is a CLI client for the testflow auth service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc/status"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `authctl CLI
Usage:
  authctl -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  register       -e <email> -p <password>
  login          -e <email> -p <password>       (saves session)
  refresh
  logout
  reset-request  -e <email>
  reset          -token <reset token> -p <new password>
  passwd         -old <password> -new <password>
  whoami         [-user <uuid>]
  can            -perm a:b,c:d [-user <uuid>]
  perm-add       -name <resource:action> [-desc ..] [-group ..]
  perms          [-group ..]
  role-add       -name <name> [-desc ..] [-perms a:b,c:d]
  roles
  role-grant     -role <uuid> -perms a:b,c:d
  role-revoke    -role <uuid> -perms a:b,c:d
  assign         -user <uuid> -role <uuid> [-ttl 24h]
  unassign       -user <uuid> -role <uuid>
`

// run parses global flags and dispatches one subcommand.
func run(ctx context.Context, e *env, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("authctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }
	fs.StringVar(&e.addr, "addr", "localhost:8443", "server addr")
	fs.StringVar(&e.caPath, "cacert", "", "CA cert (PEM)")
	fs.BoolVar(&e.insecure, "insecure", false, "skip cert verify (dev)")
	fs.BoolVar(&e.plaintext, "plaintext", false, "no TLS (dev)")
	fs.DurationVar(&e.timeout, "timeout", 30*time.Second, "per command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return flag.ErrHelp
	}
	if e.now == nil {
		e.now = time.Now
	}

	name := fs.Arg(0)
	if name == "version" {
		fmt.Fprintf(e.out, "authctl %s (%s)\n", version, buildDate)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return cmd(ctx, e, fs.Args()[1:])
}

func main() {
	e := &env{out: os.Stdout}
	if err := run(context.Background(), e, os.Args[1:], os.Stderr); err != nil {
		fail(err)
	}
}

func fail(err error) {
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
