package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	fincli "github.com/capx-fi/finvest-miniapp/internal/cli"
	"github.com/capx-fi/finvest-miniapp/internal/server"
	"github.com/capx-fi/finvest-miniapp/pkg/advisor"
	"github.com/capx-fi/finvest-miniapp/pkg/initdata"
	"github.com/capx-fi/finvest-miniapp/pkg/profile"
	"github.com/capx-fi/finvest-miniapp/pkg/userapi"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "finvest",
		Usage: "Telegram mini app backend: launch data relay, user sessions and financial advice",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API",
				Flags: []cli.Flag{
					fincli.ListenAddrFlag,
					fincli.BotTokenFlag,
					fincli.ClientIDFlag,
					fincli.ClientSecretFlag,
					fincli.InitDataMaxAgeFlag,
					fincli.UserAPIURLFlag,
					fincli.GoogleAPIKeyFlag,
					fincli.GeminiModelFlag,
					fincli.ETHRpcURLFlag,
					fincli.ChainIDFlag,
					fincli.ShutdownTimeoutFlag,
					fincli.Debug,
				},
				Action: runServer,
			},
			{
				Name:      "sign",
				Usage:     "Sign launch data fields the way Telegram does, for local testing",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					fincli.FieldFlag,
					fincli.SecretFlag,
				},
				Action: runSign,
			},
			{
				Name:      "verify",
				Usage:     "Check the signature of a launch data string",
				ArgsUsage: "<init-data>",
				Flags: []cli.Flag{
					fincli.SecretFlag,
				},
				Action: runVerify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(c *cli.Context) error {
	cfg := fincli.NewConfigFromCLI(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := fincli.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relayer, err := initdata.NewRelayer(cfg.Relay())
	if err != nil {
		return fmt.Errorf("failed to create relayer: %w", err)
	}
	l.Sugar().Infow("Launch data relay configured", "client_id", relayer.ClientID(), "max_age", cfg.InitDataMaxAge)

	var opts []server.Option

	if cfg.UserAPIURL != "" {
		users, err := userapi.NewClient(l, cfg.UserAPIURL)
		if err != nil {
			return fmt.Errorf("failed to create user API client: %w", err)
		}
		opts = append(opts, server.WithUserService(users))
	} else {
		l.Sugar().Warn("USER_API_URL not set, session routes are disabled")
	}

	if cfg.GoogleAPIKey != "" {
		gen, err := advisor.NewGeminiGenerator(ctx, cfg.GoogleAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		svc, err := advisor.NewService(l, gen)
		if err != nil {
			return fmt.Errorf("failed to create advisor: %w", err)
		}
		l.Sugar().Infow("Financial advice enabled", "model", gen.Name())
		opts = append(opts, server.WithAdvisor(svc))
	} else {
		l.Sugar().Warn("GOOGLE_API_KEY not set, financial advice is disabled")
	}

	if cfg.ETHRpcURL != "" {
		l.Sugar().Infow("Connecting to chain", "rpc", cfg.ETHRpcURL)
		ethClient, err := profile.Dial(ctx, cfg.ETHRpcURL)
		if err != nil {
			return err
		}
		defer ethClient.Close()

		var chainID *big.Int
		if cfg.ChainID != 0 {
			chainID = new(big.Int).SetUint64(cfg.ChainID)
		}
		prov, err := profile.NewProvisioner(ctx, l, ethClient, chainID)
		if err != nil {
			return fmt.Errorf("failed to create profile provisioner: %w", err)
		}
		l.Sugar().Infow("Profile provisioning enabled", "chain_id", prov.ChainID())
		opts = append(opts, server.WithProfileProvisioner(prov))
	}

	srv, err := server.New(l, server.Config{
		ListenAddr:      cfg.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, relayer, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}

func runSign(c *cli.Context) error {
	var fields []initdata.Field
	for _, kv := range c.StringSlice(fincli.FieldFlag.Name) {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid field %q, expected key=value", kv)
		}
		fields = append(fields, initdata.Field{Key: key, Value: value})
	}

	p := initdata.NewParams(fields...)
	if !p.Has("auth_date") {
		p = p.With("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	}
	signed := initdata.SignParams(p, []byte(c.String(fincli.SecretFlag.Name)))
	fmt.Println(signed.Encode())
	return nil
}

func runVerify(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one init data argument")
	}
	p := initdata.ParseParams(c.Args().First())
	if err := initdata.Verify(p, []byte(c.String(fincli.SecretFlag.Name))); err != nil {
		return err
	}

	launch, err := initdata.ParseLaunchData(p)
	if err != nil {
		return err
	}
	fmt.Printf("valid: auth_date=%s", launch.AuthDate.UTC().Format(time.RFC3339))
	if launch.User != nil {
		fmt.Printf(" user_id=%d", launch.User.ID)
	}
	fmt.Println()
	return nil
}
