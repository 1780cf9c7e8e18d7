package main

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// priceBook is a mutable in-process price feed. Prices are posted through the
// admin API; assets without a posted price fail risk aggregation rather than
// defaulting to zero.
type priceBook struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

func newPriceBook() *priceBook {
	return &priceBook{prices: make(map[common.Address]*big.Int)}
}

// SetPrice posts a base-currency price for the asset.
func (p *priceBook) SetPrice(asset common.Address, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("oracle: price must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[asset] = new(big.Int).Set(price)
	return nil
}

// Price implements the pool's oracle interface.
func (p *priceBook) Price(asset common.Address) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[asset]
	if !ok {
		return nil, fmt.Errorf("oracle: no price posted for %s", asset.Hex())
	}
	return new(big.Int).Set(price), nil
}
