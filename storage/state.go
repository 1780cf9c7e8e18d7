package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"lendpool/lending"
)

var (
	reservePrefix         = []byte("lend/reserve/")
	positionPrefix        = []byte("lend/pos/")
	slotsKey              = []byte("lend/slots")
	emodePrefix           = []byte("lend/emode/")
	accountCategoryPrefix = []byte("lend/acctcat/")
)

// State persists the lending ledger as RLP records in a key-value database.
// It satisfies the state interface the engine is wired with; missing records
// read back as nil so the engine can distinguish absent from empty.
type State struct {
	db Database
}

func NewState(db Database) *State {
	return &State{db: db}
}

func (s *State) get(key []byte, out interface{}) (bool, error) {
	encoded, err := s.db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *State) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return s.db.Put(key, encoded)
}

func reserveKey(asset common.Address) []byte {
	return append(append([]byte{}, reservePrefix...), asset.Bytes()...)
}

func positionKey(asset, account common.Address) []byte {
	key := append(append([]byte{}, positionPrefix...), asset.Bytes()...)
	key = append(key, '/')
	return append(key, account.Bytes()...)
}

func emodeKey(id uint8) []byte {
	return append(append([]byte{}, emodePrefix...), id)
}

func accountCategoryKey(account common.Address) []byte {
	return append(append([]byte{}, accountCategoryPrefix...), account.Bytes()...)
}

func (s *State) GetReserve(asset common.Address) (*lending.Reserve, error) {
	reserve := new(lending.Reserve)
	ok, err := s.get(reserveKey(asset), reserve)
	if err != nil || !ok {
		return nil, err
	}
	return reserve, nil
}

func (s *State) PutReserve(reserve *lending.Reserve) error {
	if reserve == nil {
		return fmt.Errorf("storage: nil reserve")
	}
	return s.put(reserveKey(reserve.Asset), reserve)
}

func (s *State) GetPosition(asset, account common.Address) (*lending.Position, error) {
	position := new(lending.Position)
	ok, err := s.get(positionKey(asset, account), position)
	if err != nil || !ok {
		return nil, err
	}
	return position, nil
}

func (s *State) PutPosition(position *lending.Position) error {
	if position == nil {
		return fmt.Errorf("storage: nil position")
	}
	return s.put(positionKey(position.Asset, position.Account), position)
}

// storedSlot flattens a reserve slot for the RLP list under slotsKey.
type storedSlot struct {
	ID         uint16
	Asset      common.Address
	Tombstoned bool
}

func (s *State) ReserveSlots() ([]lending.ReserveSlot, error) {
	var stored []storedSlot
	ok, err := s.get(slotsKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	slots := make([]lending.ReserveSlot, len(stored))
	for i, entry := range stored {
		slots[i] = lending.ReserveSlot{ID: entry.ID, Asset: entry.Asset, Tombstoned: entry.Tombstoned}
	}
	return slots, nil
}

func (s *State) PutReserveSlots(slots []lending.ReserveSlot) error {
	stored := make([]storedSlot, len(slots))
	for i, slot := range slots {
		stored[i] = storedSlot{ID: slot.ID, Asset: slot.Asset, Tombstoned: slot.Tombstoned}
	}
	return s.put(slotsKey, stored)
}

// storedEModeCategory carries the optional price source as an explicit flag
// because RLP cannot round-trip a nil address pointer.
type storedEModeCategory struct {
	ID                      uint8
	LTVBps                  uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
	HasPriceSource          bool
	PriceSource             common.Address
	Label                   string
}

func (s *State) GetEModeCategory(id uint8) (*lending.EModeCategory, error) {
	stored := new(storedEModeCategory)
	ok, err := s.get(emodeKey(id), stored)
	if err != nil || !ok {
		return nil, err
	}
	category := &lending.EModeCategory{
		ID:                      stored.ID,
		LTVBps:                  stored.LTVBps,
		LiquidationThresholdBps: stored.LiquidationThresholdBps,
		LiquidationBonusBps:     stored.LiquidationBonusBps,
		Label:                   stored.Label,
	}
	if stored.HasPriceSource {
		source := stored.PriceSource
		category.PriceSource = &source
	}
	return category, nil
}

func (s *State) PutEModeCategory(category *lending.EModeCategory) error {
	if category == nil {
		return fmt.Errorf("storage: nil emode category")
	}
	stored := &storedEModeCategory{
		ID:                      category.ID,
		LTVBps:                  category.LTVBps,
		LiquidationThresholdBps: category.LiquidationThresholdBps,
		LiquidationBonusBps:     category.LiquidationBonusBps,
		Label:                   category.Label,
	}
	if category.PriceSource != nil {
		stored.HasPriceSource = true
		stored.PriceSource = *category.PriceSource
	}
	return s.put(emodeKey(category.ID), stored)
}

func (s *State) GetAccountCategory(account common.Address) (uint8, error) {
	encoded, err := s.db.Get(accountCategoryKey(account))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(encoded) != 1 {
		return 0, fmt.Errorf("storage: malformed account category record")
	}
	return encoded[0], nil
}

func (s *State) PutAccountCategory(account common.Address, id uint8) error {
	return s.db.Put(accountCategoryKey(account), []byte{id})
}
