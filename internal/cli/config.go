package cli

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/capx-fi/finvest-miniapp/pkg/initdata"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type Config struct {
	ListenAddr      string
	BotToken        string
	ClientID        string
	ClientSecret    string
	InitDataMaxAge  time.Duration
	UserAPIURL      string
	GoogleAPIKey    string
	GeminiModel     string
	ETHRpcURL       string
	ChainID         uint64
	ShutdownTimeout time.Duration
	Debug           bool
}

// NewConfigFromCLI reads the flags. The relay secrets and client ID are
// signing input and are taken byte for byte.
func NewConfigFromCLI(c *cli.Context) *Config {
	return &Config{
		ListenAddr:      strings.TrimSpace(c.String(ListenAddrFlag.Name)),
		BotToken:        c.String(BotTokenFlag.Name),
		ClientID:        c.String(ClientIDFlag.Name),
		ClientSecret:    c.String(ClientSecretFlag.Name),
		InitDataMaxAge:  c.Duration(InitDataMaxAgeFlag.Name),
		UserAPIURL:      strings.TrimSpace(c.String(UserAPIURLFlag.Name)),
		GoogleAPIKey:    strings.TrimSpace(c.String(GoogleAPIKeyFlag.Name)),
		GeminiModel:     strings.TrimSpace(c.String(GeminiModelFlag.Name)),
		ETHRpcURL:       strings.TrimSpace(c.String(ETHRpcURLFlag.Name)),
		ChainID:         c.Uint64(ChainIDFlag.Name),
		ShutdownTimeout: c.Duration(ShutdownTimeoutFlag.Name),
		Debug:           c.Bool(Debug.Name),
	}
}

// Relay returns the signature relay settings.
func (c *Config) Relay() initdata.Config {
	return initdata.Config{
		BotSecret:    c.BotToken,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		MaxAge:       c.InitDataMaxAge,
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs error
	if c.ListenAddr == "" {
		errs = multierror.Append(errs, fmt.Errorf("listen address is required"))
	}
	if err := c.Relay().Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.UserAPIURL != "" {
		if err := validateHTTPURL(c.UserAPIURL); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("invalid user API URL: %w", err))
		}
	}
	if c.ETHRpcURL != "" {
		if err := validateRPCURL(c.ETHRpcURL); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("invalid ETH RPC URL: %w", err))
		}
	}
	if c.ShutdownTimeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("shutdown timeout must be positive"))
	}
	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be http(s), got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func validateRPCURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
