// Command devtoken prints bearer tokens for local testing.
package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"

	"github.com/spec-kit/doc-history/internal/auth"
	"github.com/spec-kit/doc-history/internal/config"
	"github.com/spec-kit/doc-history/internal/domain"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "devtoken",
		Usage: "Issue a bearer token signed with AUTH_JWT_SECRET",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "subject",
				Aliases: []string{"s"},
				Value:   "dev-user",
				Usage:   "subject id, recorded as the history author",
			},
			&cli.StringFlag{
				Name:    "role",
				Aliases: []string{"r"},
				Value:   string(domain.RoleEditor),
				Usage:   "viewer, editor or admin",
			},
			&cli.IntFlag{
				Name:  "ttl",
				Usage: "lifetime in minutes; defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES",
			},
		},
		Action: issue,
	}
}

func issue(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	ttl := cfg.Auth.AccessTokenTTLMinutes
	if c.IsSet("ttl") {
		ttl = c.Int("ttl")
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl)
	raw, token, err := tokens.GenerateToken(c.String("subject"), domain.Role(c.String("role")))
	if err != nil {
		return errors.Wrap(err, "issue token")
	}

	fmt.Fprintln(c.App.Writer, raw)
	fmt.Fprintf(c.App.ErrWriter, "subject=%s role=%s expires=%s\n", token.SubjectID, token.Role, token.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
