package main

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// vault is an in-process custody ledger. It tracks external account balances
// per asset and settles the pool's transfer instructions against them. A real
// deployment would replace this with a bridge to actual asset custody.
type vault struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*big.Int
}

func newVault() *vault {
	return &vault{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (v *vault) balance(asset, account common.Address) *big.Int {
	accounts, ok := v.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		v.balances[asset] = accounts
	}
	bal, ok := accounts[account]
	if !ok {
		bal = big.NewInt(0)
		accounts[account] = bal
	}
	return bal
}

// Mint credits an external account. Used to fund accounts when the daemon
// runs as a self-contained sandbox.
func (v *vault) Mint(asset, account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance(asset, account).Add(v.balance(asset, account), amount)
}

// Balance reports the external holdings of an account.
func (v *vault) Balance(asset, account common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balance(asset, account))
}

// TransferIn debits the external account in favour of the pool.
func (v *vault) TransferIn(asset, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: non-positive transfer")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	bal := v.balance(asset, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("custody: insufficient funds for %s on asset %s", from.Hex(), asset.Hex())
	}
	bal.Sub(bal, amount)
	return nil
}

// TransferOut credits the external account from the pool.
func (v *vault) TransferOut(asset, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("custody: non-positive transfer")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	bal := v.balance(asset, to)
	bal.Add(bal, amount)
	return nil
}
