package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	initialInterval = 500 * time.Millisecond
	maxInterval     = 4 * time.Second
	maxElapsedTime  = 30 * time.Second
	maxTries        = 3
)

type Request struct {
	CreditScore  int
	Goals        string
	Transactions []Transaction
}

func (r Request) Validate() error {
	if r.CreditScore < MinCreditScore || r.CreditScore > MaxCreditScore {
		return invalid(0, "Please enter a valid CIBIL score between %d and %d.", MinCreditScore, MaxCreditScore)
	}
	if strings.TrimSpace(r.Goals) == "" {
		return invalid(0, "Please enter your financial goals.")
	}
	if len(r.Transactions) == 0 {
		return invalid(0, "Please upload a transaction file.")
	}
	return nil
}

type Advice struct {
	Text        string      `json:"advice"`
	RiskProfile RiskProfile `json:"riskProfile"`
	Analysis    Analysis    `json:"-"`
}

type Service struct {
	logger    *zap.Logger
	generator Generator
}

func NewService(logger *zap.Logger, generator Generator) (*Service, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	return &Service{logger: logger, generator: generator}, nil
}

// Advise analyzes the request's transactions and asks the generator for advice.
func (s *Service) Advise(ctx context.Context, req Request) (*Advice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	analysis := Analyze(req.Transactions)
	profile := RiskProfileFor(req.CreditScore)

	prompt, err := BuildPrompt(req.CreditScore, req.Goals, profile, analysis)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	s.logger.Sugar().Debugw("Requesting advice",
		"risk_profile", profile.Name,
		"transactions", len(req.Transactions),
		"income", analysis.Income.String(),
		"expenses", analysis.Expenses.String(),
	)

	text, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate advice: %w", err)
	}

	return &Advice{
		Text:        CleanAdvice(text),
		RiskProfile: profile,
		Analysis:    analysis,
	}, nil
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	attempt := 0
	operation := func() (string, error) {
		attempt++
		text, err := s.generator.Generate(ctx, prompt)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", backoff.Permanent(err)
			}
			s.logger.Sugar().Warnw("Advice generation failed", "attempt", attempt, "error", err)
			return "", err
		}
		return text, nil
	}

	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = initialInterval
	exponentialBackoff.MaxInterval = maxInterval

	return backoff.Retry(
		ctx,
		operation,
		backoff.WithBackOff(exponentialBackoff),
		backoff.WithMaxElapsedTime(maxElapsedTime),
		backoff.WithMaxTries(maxTries),
	)
}
