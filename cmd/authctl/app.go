package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation/entity"
	revocationrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// Version is set via ldflags.
var Version = "dev"

const (
	metaConfig = "config"
	metaLogger = "logger"
)

// App creates the authctl application. loadConfig is called once before any command runs.
func App(loadConfig func() (config.AppConfig, []string, error)) *cli.App {
	return &cli.App{
		Name:    "authctl",
		Usage:   "administer the auth service database and tokens",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "log at debug level"},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			hashPasswordCommand(),
			revokeCommand(),
			verifyCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, warnings, err := loadConfig()
			if err != nil {
				return err
			}
			logger := zap.NewNop().Sugar()
			if c.Bool("verbose") {
				lg, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logger = lg.Sugar()
			}
			for _, w := range warnings {
				logger.Warn(w)
			}
			c.App.Metadata[metaConfig] = cfg
			c.App.Metadata[metaLogger] = logger
			return nil
		},
	}
}

func appConfig(c *cli.Context) config.AppConfig {
	cfg, _ := c.App.Metadata[metaConfig].(config.AppConfig)
	return cfg
}

func appLogger(c *cli.Context) *zap.SugaredLogger {
	if lg, ok := c.App.Metadata[metaLogger].(*zap.SugaredLogger); ok {
		return lg
	}
	return zap.NewNop().Sugar()
}

func connect(c *cli.Context) (*sqlx.DB, error) {
	cfg := appConfig(c)
	return database.Connect(database.Config{
		DSN:            cfg.DB.URL,
		MaxConns:       2,
		Timeout:        cfg.DB.Timeout,
		TimeZone:       cfg.DB.TimeZone,
		ClientEncoding: cfg.DB.ClientEncoding,
	})
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create tables and seed the default administrator",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-seed", Usage: "skip seeding the default administrator"},
		},
		Action: func(c *cli.Context) error {
			db, err := connect(c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("connect: %v", err), 1)
			}
			defer db.Close()

			cfg := appConfig(c)
			opts := app.MigrateOptions{SeedAdmin: cfg.Auth.SeedAdmin && !c.Bool("no-seed"), Timeout: cfg.DB.Timeout}
			if err := app.Migrate(c.Context, db, opts, appLogger(c)); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintln(c.App.Writer, "migrations applied")
			return nil
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "print the bcrypt hash of a password",
		ArgsUsage: "<password>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "cost", Value: bcrypt.DefaultCost, Usage: "bcrypt cost"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one password argument", 2)
			}
			h, err := user.BcryptHasher{Cost: c.Int("cost")}.Hash(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintln(c.App.Writer, h)
			return nil
		},
	}
}

func revokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "revoke",
		Usage:     "revoke a session token by jti",
		ArgsUsage: "<jti>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user-id", Required: true, Usage: "subject the token was issued to"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one jti argument", 2)
			}
			db, err := connect(c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("connect: %v", err), 1)
			}
			defer db.Close()

			ledger := revocation.NewLedger(revocationrepo.NewRevocationRepo(db, appConfig(c).DB.Timeout), appLogger(c))
			jti := c.Args().First()
			if err := ledger.Revoke(c.Context, jti, c.Int64("user-id")); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintf(c.App.Writer, "revoked %s\n", jti)
			return nil
		},
	}
}

// revocationChecker is the part of the ledger verify needs.
type revocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// revocationLookup fetches the stored record for a revoked jti.
type revocationLookup interface {
	Get(ctx context.Context, jti string) (*entity.Entry, error)
}

type revocationRecord struct {
	UserID     int64     `json:"user_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

type verifyResult struct {
	Valid      bool              `json:"valid"`
	Reason     string            `json:"reason,omitempty"`
	Identity   *auth.Identity    `json:"identity,omitempty"`
	Revocation *revocationRecord `json:"revocation,omitempty"`
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "decode and check a session token",
		ArgsUsage: "<token>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "check-revoked", Usage: "also consult the revocation ledger"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one token argument", 2)
			}
			cfg := appConfig(c)
			codec, err := auth.NewCodec(auth.CodecConfig{SigningKey: []byte(cfg.Auth.SigningKey), TTL: cfg.Auth.TTL()})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			var (
				checker revocationChecker
				lookup  revocationLookup
			)
			if c.Bool("check-revoked") {
				db, err := connect(c)
				if err != nil {
					return cli.Exit(fmt.Sprintf("connect: %v", err), 1)
				}
				defer db.Close()
				repo := revocationrepo.NewRevocationRepo(db, cfg.DB.Timeout)
				checker = revocation.NewLedger(repo, appLogger(c))
				lookup = repo
			}

			res := verifyToken(c.Context, codec, checker, c.Args().First())
			if lookup != nil && res.Reason == auth.KindRevokedToken.String() {
				if err := attachRevocation(c.Context, lookup, &res); err != nil {
					appLogger(c).Warnw("revocation record lookup failed", "jti", res.Identity.JTI, "err", err)
				}
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.Valid {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func verifyToken(ctx context.Context, codec *auth.Codec, checker revocationChecker, token string) verifyResult {
	id, err := codec.Verify(token)
	if err != nil {
		return verifyResult{Reason: auth.KindOf(err).String()}
	}
	if checker != nil {
		revoked, err := checker.IsRevoked(ctx, id.JTI)
		switch {
		case err != nil:
			return verifyResult{Reason: auth.KindOf(err).String(), Identity: &id}
		case revoked:
			return verifyResult{Reason: auth.KindRevokedToken.String(), Identity: &id}
		}
	}
	return verifyResult{Valid: true, Identity: &id}
}

// attachRevocation fills res.Revocation from the stored record for the token's jti.
func attachRevocation(ctx context.Context, lookup revocationLookup, res *verifyResult) error {
	if res.Identity == nil {
		return nil
	}
	e, err := lookup.Get(ctx, res.Identity.JTI)
	if err != nil {
		return err
	}
	res.Revocation = &revocationRecord{UserID: e.UserID, RecordedAt: e.CreatedAt}
	return nil
}
