package monitor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const seenCacheSize = 256

// HeadReader is the subset of ethclient.Client the monitor polls
type HeadReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// HeadMonitor polls the latest block header and reports each new head once
type HeadMonitor struct {
	client   HeadReader
	interval time.Duration
	limiter  *rate.Limiter
	seen     *lru.Cache
	highest  uint64
	logger   *zap.Logger
}

// NewHeadMonitor creates a new head monitor. A nil limiter is unlimited.
func NewHeadMonitor(client HeadReader, interval time.Duration, limiter *rate.Limiter, logger *zap.Logger) (*HeadMonitor, error) {
	seen, err := lru.New(seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create head cache: %w", err)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeadMonitor{
		client:   client,
		interval: interval,
		limiter:  limiter,
		seen:     seen,
		logger:   logger,
	}, nil
}

// Poll reads the latest header once. It reports false for a head already
// seen or one below the highest head seen so far. A reorg at the same
// height has a new hash and is reported.
func (m *HeadMonitor) Poll(ctx context.Context) (*types.Header, bool, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	header, err := m.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get latest header: %w", err)
	}
	if header.Number == nil {
		return nil, false, fmt.Errorf("header has no number")
	}

	number := header.Number.Uint64()
	if number < m.highest {
		return header, false, nil
	}
	if ok, _ := m.seen.ContainsOrAdd(header.Hash(), number); ok {
		return header, false, nil
	}
	m.highest = number
	return header, true, nil
}

// Start polls until ctx is done and delivers new heads on the returned
// channel, which is closed on exit. A slow consumer only ever misses stale
// heads: an undelivered head is replaced by a newer one.
func (m *HeadMonitor) Start(ctx context.Context) <-chan *types.Header {
	heads := make(chan *types.Header, 1)

	go func() {
		defer close(heads)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			header, fresh, err := m.Poll(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				m.logger.Warn("Head poll failed", zap.Error(err))
			case fresh:
				m.logger.Debug("New head", zap.Uint64("block", header.Number.Uint64()))
				deliverLatest(heads, header)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return heads
}

// deliverLatest puts header on a one-slot channel, replacing a pending head
func deliverLatest(heads chan *types.Header, header *types.Header) {
	for {
		select {
		case heads <- header:
			return
		default:
		}
		select {
		case <-heads:
		default:
		}
	}
}
