package cli

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	ListenAddrFlag = &cli.StringFlag{
		Name:    "listen-addr",
		Usage:   "Address the HTTP server listens on",
		Value:   "127.0.0.1:8080",
		EnvVars: []string{"LISTEN_ADDR"},
	}

	BotTokenFlag = &cli.StringFlag{
		Name:     "bot-token",
		Usage:    "Telegram bot token that signs mini app launch data",
		Required: true,
		EnvVars:  []string{"BOT_TOKEN"},
	}

	ClientIDFlag = &cli.StringFlag{
		Name:     "client-id",
		Usage:    "Client ID appended to relayed launch data",
		Required: true,
		EnvVars:  []string{"CLIENT_ID"},
	}

	ClientSecretFlag = &cli.StringFlag{
		Name:     "client-secret",
		Usage:    "Secret used to re-sign launch data for the user service",
		Required: true,
		EnvVars:  []string{"CLIENT_SECRET"},
	}

	InitDataMaxAgeFlag = &cli.DurationFlag{
		Name:    "initdata-max-age",
		Usage:   "Reject launch data whose auth_date is older than this (0 disables)",
		Value:   0,
		EnvVars: []string{"INITDATA_MAX_AGE"},
	}

	UserAPIURLFlag = &cli.StringFlag{
		Name:    "userapi-url",
		Usage:   "User service base URL that accepts relayed launch data",
		EnvVars: []string{"USER_API_URL", "NEXT_PUBLIC_API_ENDPOINT"},
	}

	GoogleAPIKeyFlag = &cli.StringFlag{
		Name:    "google-api-key",
		Usage:   "Gemini API key used to generate financial advice",
		EnvVars: []string{"GOOGLE_API_KEY"},
	}

	GeminiModelFlag = &cli.StringFlag{
		Name:    "gemini-model",
		Usage:   "Gemini model name",
		Value:   "gemini-2.0-flash",
		EnvVars: []string{"GEMINI_MODEL"},
	}

	ETHRpcURLFlag = &cli.StringFlag{
		Name:    "eth-rpc-url",
		Usage:   "Chain RPC URL used to confirm profile transactions (e.g. http://localhost:8545)",
		EnvVars: []string{"ETH_RPC_URL", "NEXT_PUBLIC_CAPX_CHAIN_RPC_URL"},
	}

	ChainIDFlag = &cli.Uint64Flag{
		Name:    "chain-id",
		Usage:   "Chain ID for profile transactions (0 asks the RPC endpoint)",
		EnvVars: []string{"CHAIN_ID", "NEXT_PUBLIC_CAPX_CHAIN_ID"},
	}

	ShutdownTimeoutFlag = &cli.DurationFlag{
		Name:    "shutdown-timeout",
		Usage:   "Grace period for in-flight requests on shutdown",
		Value:   15 * time.Second,
		EnvVars: []string{"SHUTDOWN_TIMEOUT"},
	}

	Debug = &cli.BoolFlag{
		Name:    "debug",
		Usage:   "Enable debug logging",
		EnvVars: []string{"DEBUG"},
	}

	// Flags for the sign command.

	FieldFlag = &cli.StringSliceFlag{
		Name:    "field",
		Aliases: []string{"f"},
		Usage:   "Launch data field as key=value (repeatable)",
	}

	SecretFlag = &cli.StringFlag{
		Name:     "secret",
		Usage:    "Secret to sign with",
		Required: true,
		EnvVars:  []string{"BOT_TOKEN"},
	}
)
