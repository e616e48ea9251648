package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/omigeot/server/internal/client"
	"github.com/omigeot/server/internal/platform/logging"
)

const (
	envServer   = "APPCONFIGCTL_SERVER"
	envUser     = "APPCONFIGCTL_USER"
	envPassword = "APPCONFIGCTL_PASSWORD"
)

type options struct {
	server   string
	user     string
	timeout  time.Duration
	logLevel string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	passwordOnce sync.Once
	password     string
	passwordErr  error
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	o := &options{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "appconfigctl",
		Short:         "Manage app config values",
		Long:          `Read and write per-app config values and bump the theming cache-buster on a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			slog.SetDefault(logging.New(o.stderr, o.logLevel, "text"))
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&o.server, "server", envOr(envServer, "http://localhost:8080"), "server base URL (or set "+envServer+")")
	flags.StringVar(&o.user, "user", envOr(envUser, "admin"), "admin user (or set "+envUser+")")
	flags.DurationVar(&o.timeout, "timeout", 30*time.Second, "overall request timeout")
	flags.StringVar(&o.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newAppsCmd(o),
		newKeysCmd(o),
		newGetCmd(o),
		newExistsCmd(o),
		newSetCmd(o),
		newDeleteCmd(o),
		newCacheBusterCmd(o),
		newCacheCmd(o),
	)
	return root
}

type clientFunc func(ctx context.Context, c *client.Client, args []string) error

func (o *options) run(fn clientFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
		defer cancel()
		return o.withClient(ctx, func(ctx context.Context, c *client.Client) error {
			return fn(ctx, c, args)
		})
	}
}

// withClient logs in and hands over a client whose writes reuse the login
// password for confirmation.
func (o *options) withClient(ctx context.Context, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := client.New(client.Config{
		BaseURL: o.server,
		Prompt:  client.PasswordPromptFunc(o.readPassword),
	})
	if err != nil {
		return err
	}

	password, err := o.readPassword(ctx)
	if err != nil {
		return err
	}
	if err := c.Login(ctx, o.user, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer func() { _ = c.Logout(context.WithoutCancel(ctx)) }()

	return fn(ctx, c)
}

// readPassword takes the password from the environment, or else the first
// line of stdin. It is read at most once.
func (o *options) readPassword(context.Context) (string, error) {
	o.passwordOnce.Do(func() {
		if p, ok := os.LookupEnv(envPassword); ok {
			o.password = p
			return
		}
		line, err := bufio.NewReader(o.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			o.passwordErr = fmt.Errorf("read password: %w", err)
			return
		}
		o.password = strings.TrimRight(line, "\r\n")
		if o.password == "" {
			o.passwordErr = fmt.Errorf("no password: set %s or pipe it on stdin", envPassword)
		}
	})
	return o.password, o.passwordErr
}

func describe(err error) string {
	switch {
	case errors.Is(err, client.ErrForbiddenKey):
		return "this key is protected and cannot be changed"
	case errors.Is(err, client.ErrUnauthorized):
		return "not authorised, check user and password"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	}
	return err.Error()
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
