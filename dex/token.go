package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/tierarb/contracts"
	"github.com/shopspring/decimal"
)

const defaultTokenCacheSize = 1024

// Token is ERC20 metadata, immutable once fetched
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Format renders a raw amount in whole token units
func (t Token) Format(amount *big.Int) string {
	if amount == nil {
		return "0 " + t.Symbol
	}
	return decimal.NewFromBigInt(amount, -int32(t.Decimals)).String() + " " + t.Symbol
}

// TokenRegistry resolves and caches token metadata
type TokenRegistry struct {
	caller bind.ContractCaller
	cache  *lru.Cache
}

// NewTokenRegistry creates a new token registry reading through caller
func NewTokenRegistry(caller bind.ContractCaller, size int) (*TokenRegistry, error) {
	if size <= 0 {
		size = defaultTokenCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	return &TokenRegistry{caller: caller, cache: cache}, nil
}

// Register seeds the cache with known metadata
func (r *TokenRegistry) Register(t Token) {
	r.cache.Add(t.Address, t)
}

// Token returns the metadata of address, reading it on first use
func (r *TokenRegistry) Token(ctx context.Context, address common.Address) (Token, error) {
	if cached, ok := r.cache.Get(address); ok {
		return cached.(Token), nil
	}

	contract := bind.NewBoundContract(address, contracts.TokenABI, r.caller, nil, nil)
	opts := &bind.CallOpts{Context: ctx}

	var out []interface{}
	if err := contract.Call(opts, &out, "symbol"); err != nil {
		return Token{}, fmt.Errorf("failed to get symbol of %s: %w", address.Hex(), err)
	}
	symbol, ok := out[0].(string)
	if !ok {
		return Token{}, fmt.Errorf("failed to parse symbol of %s", address.Hex())
	}

	out = nil
	if err := contract.Call(opts, &out, "decimals"); err != nil {
		return Token{}, fmt.Errorf("failed to get decimals of %s: %w", address.Hex(), err)
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return Token{}, fmt.Errorf("failed to parse decimals of %s", address.Hex())
	}

	t := Token{Address: address, Symbol: symbol, Decimals: decimals}
	r.cache.Add(address, t)
	return t, nil
}
