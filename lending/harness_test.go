package lending

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/events"
)

// mockEngineState stores records in maps and hands out deep copies, matching
// the decode-fresh semantics of the persistent store.
type mockEngineState struct {
	reserves   map[common.Address]*Reserve
	positions  map[string]*Position
	slots      []ReserveSlot
	categories map[uint8]*EModeCategory
	accountCat map[common.Address]uint8
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		reserves:   make(map[common.Address]*Reserve),
		positions:  make(map[string]*Position),
		categories: make(map[uint8]*EModeCategory),
		accountCat: make(map[common.Address]uint8),
	}
}

func (m *mockEngineState) positionKey(asset, account common.Address) string {
	return asset.Hex() + "/" + account.Hex()
}

func (m *mockEngineState) GetReserve(asset common.Address) (*Reserve, error) {
	return m.reserves[asset].Clone(), nil
}

func (m *mockEngineState) PutReserve(reserve *Reserve) error {
	m.reserves[reserve.Asset] = reserve.Clone()
	return nil
}

func (m *mockEngineState) GetPosition(asset, account common.Address) (*Position, error) {
	return m.positions[m.positionKey(asset, account)].Clone(), nil
}

func (m *mockEngineState) PutPosition(position *Position) error {
	m.positions[m.positionKey(position.Asset, position.Account)] = position.Clone()
	return nil
}

func (m *mockEngineState) ReserveSlots() ([]ReserveSlot, error) {
	slots := make([]ReserveSlot, len(m.slots))
	copy(slots, m.slots)
	return slots, nil
}

func (m *mockEngineState) PutReserveSlots(slots []ReserveSlot) error {
	m.slots = make([]ReserveSlot, len(slots))
	copy(m.slots, slots)
	return nil
}

func (m *mockEngineState) GetEModeCategory(id uint8) (*EModeCategory, error) {
	return m.categories[id].Clone(), nil
}

func (m *mockEngineState) PutEModeCategory(category *EModeCategory) error {
	m.categories[category.ID] = category.Clone()
	return nil
}

func (m *mockEngineState) GetAccountCategory(account common.Address) (uint8, error) {
	return m.accountCat[account], nil
}

func (m *mockEngineState) PutAccountCategory(account common.Address, id uint8) error {
	m.accountCat[account] = id
	return nil
}

func (m *mockEngineState) addReserve(reserve *Reserve) {
	reserve.ensureDefaults()
	m.reserves[reserve.Asset] = reserve
	m.slots = append(m.slots, ReserveSlot{ID: uint16(len(m.slots)), Asset: reserve.Asset})
}

func (m *mockEngineState) reserve(t *testing.T, asset common.Address) *Reserve {
	t.Helper()
	reserve := m.reserves[asset]
	if reserve == nil {
		t.Fatalf("reserve %s not found", asset.Hex())
	}
	return reserve
}

func (m *mockEngineState) position(asset, account common.Address) *Position {
	position := m.positions[m.positionKey(asset, account)]
	if position == nil {
		position = &Position{Account: account, Asset: asset}
		position.ensureDefaults()
	}
	return position
}

type mockOracle struct {
	prices map[common.Address]*big.Int
}

func newMockOracle() *mockOracle {
	return &mockOracle{prices: make(map[common.Address]*big.Int)}
}

func (o *mockOracle) set(asset common.Address, price int64) {
	o.prices[asset] = big.NewInt(price)
}

func (o *mockOracle) Price(asset common.Address) (*big.Int, error) {
	price, ok := o.prices[asset]
	if !ok {
		return nil, ErrReserveNotFound
	}
	return new(big.Int).Set(price), nil
}

type custodyTransfer struct {
	asset   common.Address
	account common.Address
	amount  *big.Int
}

// mockCustody records booked transfers without holding real balances.
type mockCustody struct {
	ins  []custodyTransfer
	outs []custodyTransfer
}

func (c *mockCustody) TransferIn(asset, from common.Address, amount *big.Int) error {
	c.ins = append(c.ins, custodyTransfer{asset: asset, account: from, amount: new(big.Int).Set(amount)})
	return nil
}

func (c *mockCustody) TransferOut(asset, to common.Address, amount *big.Int) error {
	c.outs = append(c.outs, custodyTransfer{asset: asset, account: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (c *mockCustody) lastOut(t *testing.T) custodyTransfer {
	t.Helper()
	if len(c.outs) == 0 {
		t.Fatal("no outbound transfers recorded")
	}
	return c.outs[len(c.outs)-1]
}

type testEnv struct {
	engine  *Engine
	state   *mockEngineState
	oracle  *mockOracle
	custody *mockCustody
	emitter *events.CollectEmitter
}

var testTreasury = makeAddress(0xfe)

func newTestEnv() *testEnv {
	env := &testEnv{
		state:   newMockEngineState(),
		oracle:  newMockOracle(),
		custody: &mockCustody{},
		emitter: &events.CollectEmitter{},
	}
	env.engine = NewEngine(testTreasury)
	env.engine.SetState(env.state)
	env.engine.SetOracle(env.oracle)
	env.engine.SetCustody(env.custody)
	env.engine.SetEmitter(env.emitter)
	env.engine.SetTimestamp(1_000)
	return env
}

func (env *testEnv) lastEvent(t *testing.T) *events.Event {
	t.Helper()
	if len(env.emitter.Events) == 0 {
		t.Fatal("no events emitted")
	}
	return env.emitter.Events[len(env.emitter.Events)-1]
}

func makeAddress(suffix byte) common.Address {
	var addr common.Address
	addr[common.AddressLength-1] = suffix
	return addr
}

// testReserve returns a zero-decimal reserve priced one to one in tests so
// expected quantities can be computed by hand.
func testReserve(asset common.Address) *Reserve {
	reserve := &Reserve{
		Asset:                   asset,
		Decimals:                0,
		LTVBps:                  5_000,
		LiquidationThresholdBps: 8_000,
		LiquidationBonusBps:     10_500,
		LastUpdateTimestamp:     1_000,
		Flags: ReserveFlags{
			Active:           true,
			BorrowingEnabled: true,
		},
	}
	reserve.ensureDefaults()
	return reserve
}

func mustBig(t *testing.T, value string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		t.Fatalf("invalid big integer literal %q", value)
	}
	return v
}
