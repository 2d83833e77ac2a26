package gas

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrNoFees is returned before the first successful update
var ErrNoFees = errors.New("gas fees not yet known")

// Client is the subset of ethclient.Client the estimator reads from
type Client interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Fees is the fee market state of the latest head
type Fees struct {
	BaseFee *big.Int
	Tip     *big.Int
}

// GasPrice returns the effective price paid per gas
func (f Fees) GasPrice() *big.Int {
	return new(big.Int).Add(f.BaseFee, f.Tip)
}

// FeeCap returns a fee cap that survives one full base fee doubling
func (f Fees) FeeCap() *big.Int {
	feeCap := new(big.Int).Lsh(f.BaseFee, 1)
	return feeCap.Add(feeCap, f.Tip)
}

// Estimator provides gas price estimation and tracking
type Estimator struct {
	client      Client
	logger      *zap.Logger
	maxGasPrice *big.Int
	baseFee     *big.Int
	priorityFee *big.Int
	mu          sync.RWMutex
}

// NewEstimator creates a new gas estimator. A nil maxGasPrice disables the cap.
func NewEstimator(client Client, maxGasPrice *big.Int, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		client:      client,
		logger:      logger,
		maxGasPrice: maxGasPrice,
	}
}

// Update fetches latest gas prices
func (e *Estimator) Update(ctx context.Context) error {
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	return e.UpdateFromHeader(ctx, header)
}

// UpdateFromHeader takes the base fee from an already fetched head
func (e *Estimator) UpdateFromHeader(ctx context.Context, header *types.Header) error {
	baseFee := header.BaseFee
	if baseFee == nil {
		// pre-London chains
		baseFee = new(big.Int)
	}

	priorityFee, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.baseFee = new(big.Int).Set(baseFee)
	e.priorityFee = new(big.Int).Set(priorityFee)
	e.mu.Unlock()

	return nil
}

// Fees returns the latest known fee market state
func (e *Estimator) Fees() (Fees, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.baseFee == nil {
		return Fees{}, ErrNoFees
	}
	return Fees{
		BaseFee: new(big.Int).Set(e.baseFee),
		Tip:     new(big.Int).Set(e.priorityFee),
	}, nil
}

// GasPrice returns base fee plus tip, clamped to the configured maximum
func (e *Estimator) GasPrice() (*big.Int, error) {
	fees, err := e.Fees()
	if err != nil {
		return nil, err
	}
	price := fees.GasPrice()
	if e.maxGasPrice != nil && e.maxGasPrice.Sign() > 0 && price.Cmp(e.maxGasPrice) > 0 {
		return nil, fmt.Errorf("gas price %s exceeds maximum %s", price, e.maxGasPrice)
	}
	return price, nil
}
