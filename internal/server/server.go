package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/capx-fi/finvest-miniapp/pkg/advisor"
	"github.com/capx-fi/finvest-miniapp/pkg/profile"
	"github.com/capx-fi/finvest-miniapp/pkg/userapi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Relayer verifies and re-signs raw launch data.
type Relayer interface {
	Relay(raw string) (string, error)
}

type Advisor interface {
	Advise(ctx context.Context, req advisor.Request) (*advisor.Advice, error)
}

type UserService interface {
	Authenticate(ctx context.Context, relayedInitData string) (*userapi.Session, error)
	GetUser(ctx context.Context, accessToken string) (*userapi.Session, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	RequestFaucet(ctx context.Context, accessToken string) error
}

type ProfileProvisioner interface {
	Prepare(tx *userapi.SignupTx) (*profile.CreateProfileCall, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type Config struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
}

type Server struct {
	logger   *zap.Logger
	cfg      Config
	relayer  Relayer
	advisor  Advisor
	users    UserService
	profiles ProfileProvisioner
	metrics  *metrics
	now      func() time.Time
}

type Option func(*Server)

func WithAdvisor(a Advisor) Option {
	return func(s *Server) { s.advisor = a }
}

func WithUserService(u UserService) Option {
	return func(s *Server) { s.users = u }
}

func WithProfileProvisioner(p ProfileProvisioner) Option {
	return func(s *Server) { s.profiles = p }
}

func New(logger *zap.Logger, cfg Config, relayer Relayer, opts ...Option) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if relayer == nil {
		return nil, fmt.Errorf("relayer cannot be nil")
	}
	s := &Server{
		logger:  logger,
		cfg:     cfg,
		relayer: relayer,
		metrics: newMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/verify", s.instrument("verify", s.handleVerify))
	mux.Handle("POST /api/auth", s.instrument("auth", s.handleAuth))
	mux.Handle("GET /api/users", s.instrument("users", s.handleGetUser))
	mux.Handle("POST /api/profile/prepare", s.instrument("profile_prepare", s.handleProfilePrepare))
	mux.Handle("POST /api/profile/confirm", s.instrument("profile_confirm", s.handleProfileConfirm))
	mux.Handle("POST /api/financial-advice", s.instrument("financial_advice", s.handleFinancialAdvice))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return withRequestID(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Sugar().Infow("finvest server listening",
			"addr", s.cfg.ListenAddr,
			"advisor", s.advisor != nil,
			"user_service", s.users != nil,
			"profiles", s.profiles != nil,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Sugar().Infow("Shutting down", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
