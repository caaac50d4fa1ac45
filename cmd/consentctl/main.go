// Command consentctl drives a client session against a local catalog or a
// consent server. Every command prints JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/remote"
	"github.com/aussiebroadwan/consent/internal/consent/service"
	"github.com/aussiebroadwan/consent/pkg/slogx"
)

const version = "v0.1.0"

const usage = `usage: consentctl [-config path] [-server url] [-log-level level] <command> [flags]

commands:
  status    [-user id]                       status of every policy
  required  [-user id]                       policies still to accept
  accept    <policy> [-version v] [-company ...]
  decline   <policy> [-reason text]
  history   [-user id]                       valid acceptances
  refresh                                    reload the catalog from the server
  token     -key pem -sub id [-kid k] [-iss i] [-ttl d]
                                             mint a development bearer token

CONSENT_TOKEN supplies the bearer token for server calls.
`

type command func(c *cli, ctx context.Context, sess *service.Session, args []string) int

var commands = map[string]command{
	"status":   (*cli).runStatus,
	"required": (*cli).runRequired,
	"accept":   (*cli).runAccept,
	"decline":  (*cli).runDecline,
	"history":  (*cli).runHistory,
	"refresh":  (*cli).runRefresh,
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time

	logger *slog.Logger

	// set by the decline hook so a failed server call is not lost
	declineErr error
}

func main() {
	c := &cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		now:    time.Now,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("consentctl", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() { fmt.Fprint(c.stderr, usage) }

	configPath := fs.String("config", envOr(c.getenv("CONSENT_CONFIG"), "consent.json"), "session configuration file")
	server := fs.String("server", c.getenv("CONSENT_SERVER"), "server base URL, fills unset api endpoints")
	logLevel := fs.String("log-level", "warn", "log level written to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}
	name, cmdArgs := rest[0], rest[1:]

	c.logger = slogx.New(slogx.Config{
		Service: "consentctl",
		Version: version,
		Env:     "cli",
		Level:   *logLevel,
		Format:  "text",
		Output:  c.stderr,
	})

	if name == "token" {
		return c.runToken(cmdArgs)
	}

	cmd, ok := commands[name]
	if !ok {
		c.fail(fmt.Errorf("unknown command %q", name))
		fs.Usage()
		return 2
	}

	sess, err := c.openSession(ctx, *configPath, *server)
	if err != nil {
		c.fail(err)
		return 1
	}
	defer sess.Close()

	return cmd(c, ctx, sess, cmdArgs)
}

// openSession loads the configuration and attaches a remote client unless
// the data source is local. Local sessions ignore server.
func (c *cli) openSession(ctx context.Context, path, server string) (*service.Session, error) {
	cfg, err := service.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if server != "" && cfg.DataSource.Type != service.SourceLocal {
		cfg.DataSource.APIEndpoints = withDefaults(cfg.DataSource.APIEndpoints, remote.EndpointsFor(server))
	}

	opts := []service.SessionOption{
		service.WithLogger(c.logger),
		service.WithClock(c.now),
		service.WithUserAgent("consentctl/" + version),
	}

	if cfg.DataSource.Type != service.SourceLocal {
		client := remote.NewClient(cfg.DataSource.APIEndpoints, c.getenv("CONSENT_TOKEN"))
		client.UserAgent = "consentctl/" + version
		opts = append(opts, service.WithRemote(client))

		cfg.Callbacks.OnDecline = func(ctx context.Context, policyID, reason string) error {
			c.declineErr = client.DeclinePolicy(ctx, policyID, reason)
			return c.declineErr
		}
	}
	cfg.Callbacks.OnError = func(err error, operation string) {
		c.logger.Error("operation failed", "operation", operation, "error", err)
	}

	sess, err := service.NewSession(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.DataSource.Type == service.SourceHybrid {
		// local data stays in place when the server is unreachable
		if err := sess.RefreshData(ctx); err != nil {
			c.logger.Warn("catalog refresh failed, using local data", "error", err)
		}
	}
	return sess, nil
}

func withDefaults(set, defaults service.APIEndpoints) service.APIEndpoints {
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&set.GetPolicies, defaults.GetPolicies)
	fill(&set.GetPolicy, defaults.GetPolicy)
	fill(&set.SubmitAcceptance, defaults.SubmitAcceptance)
	fill(&set.GetUserAcceptances, defaults.GetUserAcceptances)
	fill(&set.GetUsers, defaults.GetUsers)
	fill(&set.GetCompanies, defaults.GetCompanies)
	fill(&set.GetOrganizationSettings, defaults.GetOrganizationSettings)
	return set
}

func (c *cli) printJSON(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		c.fail(err)
		return 1
	}
	return 0
}

type errorOutput struct {
	Error      string            `json:"error"`
	StatusCode int               `json:"statusCode,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// fail writes err to stderr as JSON, keeping the typed details.
func (c *cli) fail(err error) {
	out := errorOutput{Error: err.Error()}

	var verr *domain.ValidationError
	var serr *service.SubmissionError
	var ferr *service.FetchError
	var aerr *remote.APIError
	switch {
	case errors.As(err, &verr):
		out.Fields = verr.Fields
	case errors.As(err, &serr):
		out.StatusCode = serr.StatusCode
	case errors.As(err, &ferr):
		out.StatusCode = ferr.StatusCode
	case errors.As(err, &aerr):
		out.StatusCode = aerr.StatusCode
	}

	b, _ := json.Marshal(out)
	fmt.Fprintln(c.stderr, string(b))
}

func envOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
