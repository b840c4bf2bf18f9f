package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/capx-fi/finvest-miniapp/pkg/userapi"
	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	CreateProfileMethod = "createProfile"

	defaultPollInterval = 2 * time.Second
	defaultWaitTimeout  = 2 * time.Minute
)

var (
	ErrNoSignupTx        = errors.New("profile: no pending signup transaction")
	ErrInvalidSignupTx   = errors.New("profile: invalid signup transaction")
	ErrTransactionFailed = errors.New("profile: transaction reverted")
)

// ChainReader is the part of an RPC client the provisioner needs.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// CreateProfileCall is what the client's wallet needs to send the mint.
type CreateProfileCall struct {
	ContractAddress common.Address `json:"contractAddress"`
	Method          string         `json:"method"`
	Selector        string         `json:"selector"`
	ChainID         *big.Int       `json:"chainId"`
}

// PrepareCreateProfile checks that tx targets a contract exposing
// createProfile(profileParams, profileData).
func PrepareCreateProfile(tx *userapi.SignupTx, chainID *big.Int) (*CreateProfileCall, error) {
	if tx.Empty() {
		return nil, ErrNoSignupTx
	}
	if !common.IsHexAddress(tx.ContractAddress) {
		return nil, fmt.Errorf("%w: contract address %q is not a hex address", ErrInvalidSignupTx, tx.ContractAddress)
	}
	contractABI, err := abi.JSON(bytes.NewReader(tx.ContractABI))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse contract ABI: %v", ErrInvalidSignupTx, err)
	}
	method, ok := contractABI.Methods[CreateProfileMethod]
	if !ok {
		return nil, fmt.Errorf("%w: ABI has no %s method", ErrInvalidSignupTx, CreateProfileMethod)
	}
	if len(method.Inputs) != 2 {
		return nil, fmt.Errorf("%w: %s takes %d arguments, expected 2", ErrInvalidSignupTx, CreateProfileMethod, len(method.Inputs))
	}

	return &CreateProfileCall{
		ContractAddress: common.HexToAddress(tx.ContractAddress),
		Method:          method.Sig,
		Selector:        hexutil.Encode(method.ID),
		ChainID:         chainID,
	}, nil
}

// ParseTxHash parses a 0x-prefixed 32-byte transaction hash.
func ParseTxHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid transaction hash: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash: expected %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum RPC: %w", err)
	}
	return client, nil
}

type Provisioner struct {
	logger       *zap.Logger
	chain        ChainReader
	chainID      *big.Int
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// NewProvisioner creates a provisioner for the given chain. A nil chainID is
// looked up from the RPC endpoint.
func NewProvisioner(ctx context.Context, logger *zap.Logger, chain ChainReader, chainID *big.Int) (*Provisioner, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if chain == nil {
		return nil, fmt.Errorf("chain reader cannot be nil")
	}
	if chainID == nil || chainID.Sign() == 0 {
		id, err := chain.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain ID: %w", err)
		}
		chainID = id
	}
	return &Provisioner{
		logger:       logger,
		chain:        chain,
		chainID:      chainID,
		pollInterval: defaultPollInterval,
		waitTimeout:  defaultWaitTimeout,
	}, nil
}

func (p *Provisioner) ChainID() *big.Int {
	return new(big.Int).Set(p.chainID)
}

func (p *Provisioner) Prepare(tx *userapi.SignupTx) (*CreateProfileCall, error) {
	return PrepareCreateProfile(tx, p.ChainID())
}

// WaitForReceipt polls until the transaction is mined. A reverted transaction
// fails with ErrTransactionFailed.
func (p *Provisioner) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	attempts := 0
	operation := func() (*types.Receipt, error) {
		attempts++
		receipt, err := p.chain.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			p.logger.Sugar().Debugw("Transaction not mined yet", "tx", hash.Hex(), "attempts", attempts)
			return nil, err
		}
		if err != nil {
			p.logger.Sugar().Warnw("Failed to fetch receipt", "tx", hash.Hex(), "error", err)
			return nil, err
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s in block %v", ErrTransactionFailed, hash.Hex(), receipt.BlockNumber))
		}
		return receipt, nil
	}

	receipt, err := backoff.Retry(
		ctx,
		operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.pollInterval)),
		backoff.WithMaxElapsedTime(p.waitTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for %s: %w", hash.Hex(), err)
	}
	p.logger.Sugar().Infow("Profile transaction mined", "tx", hash.Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}
