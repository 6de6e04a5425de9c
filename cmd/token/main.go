// Command token issues bearer tokens for the registry API. The signing key
// and issuer must match the server's CERTREG_JWT_* settings.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	jwttoken "certreg/internal/jwt_token"
	"certreg/internal/platform/config"
	id "certreg/pkg/domain"
)

const defaultTTL = time.Hour

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:     "principal",
		Usage:    "caller principal to put in the sub claim",
		Required: true,
	},
	&cli.StringFlag{
		Name:    "signing-key",
		Value:   config.DevSigningKey,
		Usage:   "HS256 signing key",
		EnvVars: []string{"CERTREG_JWT_SIGNING_KEY"},
	},
	&cli.StringFlag{
		Name:    "issuer",
		Value:   "certreg",
		Usage:   "iss claim",
		EnvVars: []string{"CERTREG_JWT_ISSUER"},
	},
	&cli.DurationFlag{
		Name:    "ttl",
		Value:   0,
		Usage:   "token lifetime (defaults to CERTREG_JWT_TTL or 1h)",
		EnvVars: []string{"CERTREG_JWT_TTL"},
	},
}

func main() {
	app := &cli.App{
		Name:   "token",
		Usage:  "Issue a registry bearer token for a principal",
		Flags:  flags,
		Action: issue,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func issue(cCtx *cli.Context) error {
	principal, err := id.ParsePrincipal(cCtx.String("principal"))
	if err != nil {
		return fmt.Errorf("invalid principal: %w", err)
	}
	ttl := cCtx.Duration("ttl")
	if ttl <= 0 {
		ttl = defaultTTL
	}

	svc := jwttoken.NewJWTService(cCtx.String("signing-key"), cCtx.String("issuer"))
	token, err := svc.GenerateAccessToken(principal, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cCtx.App.Writer, token)
	return err
}
