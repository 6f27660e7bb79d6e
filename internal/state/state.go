package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Position struct {
	Qty      int
	AvgEntry float64
}

type OpenOrder struct {
	ClientOrderID string
	OrderID       string
	Symbol        string
	Status        string
}

// Reading is the last evaluation seen for a symbol. RSI and EWMA are nil
// while the indicators are still warming up.
type Reading struct {
	Time      time.Time
	Price     float64
	RSI       *float64
	EWMA      *float64
	Direction string
}

type SymbolState struct {
	Position      Position
	LastTradeTime time.Time
	LastBarTime   time.Time
	Reading       Reading
}

type Snapshot struct {
	Symbols    map[string]SymbolState
	OpenOrders map[string]OpenOrder
}

type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewStore() *Store {
	return &Store{snapshot: emptySnapshot()}
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Symbols:    map[string]SymbolState{},
		OpenOrders: map[string]OpenOrder{},
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := emptySnapshot()
	for k, v := range s.snapshot.Symbols {
		out.Symbols[k] = v
	}
	for k, v := range s.snapshot.OpenOrders {
		out.OpenOrders[k] = v
	}
	return out
}

func (s *Store) Symbol(symbol string) SymbolState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Symbols[symbol]
}

// OpenOrderCount counts open orders for symbol.
func (s *Store) OpenOrderCount(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, order := range s.snapshot.OpenOrders {
		if order.Symbol == symbol {
			n++
		}
	}
	return n
}

func (s *Store) update(symbol string, fn func(*SymbolState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.snapshot.Symbols[symbol]
	fn(&st)
	s.snapshot.Symbols[symbol] = st
}

func (s *Store) UpdatePosition(symbol string, position Position) {
	s.update(symbol, func(st *SymbolState) { st.Position = position })
}

func (s *Store) SetLastTradeTime(symbol string, t time.Time) {
	s.update(symbol, func(st *SymbolState) { st.LastTradeTime = t })
}

func (s *Store) SetLastBarTime(symbol string, t time.Time) {
	s.update(symbol, func(st *SymbolState) { st.LastBarTime = t })
}

func (s *Store) SetReading(symbol string, reading Reading) {
	s.update(symbol, func(st *SymbolState) { st.Reading = reading })
}

func (s *Store) SetOpenOrders(orders map[string]OpenOrder) {
	if orders == nil {
		orders = map[string]OpenOrder{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrders = orders
}

func (s *Store) AddOpenOrder(order OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.OpenOrders[order.ClientOrderID] = order
}

// Save writes the checkpoint through a temp file so a crash never leaves a
// truncated checkpoint behind.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.snapshot, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close checkpoint: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if snapshot.Symbols == nil {
		snapshot.Symbols = map[string]SymbolState{}
	}
	if snapshot.OpenOrders == nil {
		snapshot.OpenOrders = map[string]OpenOrder{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	return nil
}
