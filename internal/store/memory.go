package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yourusername/broker/internal/model"
)

// NewMemory builds an in-memory Store. Suitable for tests and for a broker
// instance that is restarted rarely enough that replaying open sub-orders
// from the hub's own retry behavior is acceptable; production deployments
// should wrap it with a durable decorator (see FileStore).
func NewMemory() Dumpable {
	return &memoryStore{
		subOrders:    newMemorySubOrders(),
		trades:       newMemoryTrades(),
		withdrawals:  newMemoryWithdrawals(),
		transactions: newMemoryTransactions(),
	}
}

type memoryStore struct {
	subOrders    *memorySubOrders
	trades       *memoryTrades
	withdrawals  *memoryWithdrawals
	transactions *memoryTransactions
}

func (m *memoryStore) SubOrders() SubOrders       { return m.subOrders }
func (m *memoryStore) Trades() Trades             { return m.trades }
func (m *memoryStore) Withdrawals() Withdrawals   { return m.withdrawals }
func (m *memoryStore) Transactions() Transactions { return m.transactions }

func (m *memoryStore) dumpAll() snapshot {
	m.subOrders.mu.RLock()
	subs := make([]*model.SubOrder, 0, len(m.subOrders.byID))
	for _, s := range m.subOrders.byID {
		subs = append(subs, s.Clone())
	}
	m.subOrders.mu.RUnlock()

	m.trades.mu.RLock()
	trades := make([]*model.Trade, 0, len(m.trades.byID))
	for _, t := range m.trades.byID {
		trades = append(trades, t.Clone())
	}
	m.trades.mu.RUnlock()

	m.withdrawals.mu.RLock()
	withdrawals := make([]*model.Withdrawal, 0, len(m.withdrawals.byID))
	for _, w := range m.withdrawals.byID {
		withdrawals = append(withdrawals, w.Clone())
	}
	m.withdrawals.mu.RUnlock()

	m.transactions.mu.RLock()
	txs := make([]*model.Transaction, 0, len(m.transactions.byID))
	for _, tx := range m.transactions.byID {
		txs = append(txs, tx.Clone())
	}
	m.transactions.mu.RUnlock()

	return snapshot{SubOrders: subs, Trades: trades, Withdrawals: withdrawals, Transactions: txs}
}

func (m *memoryStore) loadAll(s snapshot) error {
	m.subOrders.mu.Lock()
	for _, sub := range s.SubOrders {
		m.subOrders.byID[sub.ID] = sub.Clone()
	}
	m.subOrders.mu.Unlock()

	m.trades.mu.Lock()
	for _, t := range s.Trades {
		m.trades.byID[tradeKey(t.Exchange, t.ExchangeOrderID)] = t.Clone()
	}
	m.trades.mu.Unlock()

	m.withdrawals.mu.Lock()
	for _, w := range s.Withdrawals {
		m.withdrawals.byID[w.ExchangeWithdrawID] = w.Clone()
	}
	m.withdrawals.mu.Unlock()

	m.transactions.mu.Lock()
	for _, tx := range s.Transactions {
		m.transactions.byID[tx.TransactionHash] = tx.Clone()
	}
	m.transactions.mu.Unlock()

	return nil
}

// --- sub-orders ---

type memorySubOrders struct {
	mu   sync.RWMutex
	byID map[int64]*model.SubOrder
}

func newMemorySubOrders() *memorySubOrders {
	return &memorySubOrders{byID: make(map[int64]*model.SubOrder)}
}

func (s *memorySubOrders) Insert(sub *model.SubOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[sub.ID]; exists {
		return fmt.Errorf("sub-order %d already exists", sub.ID)
	}
	s.byID[sub.ID] = sub.Clone()
	return nil
}

func (s *memorySubOrders) Update(sub *model.SubOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[sub.ID]; !exists {
		return fmt.Errorf("sub-order %d not found", sub.ID)
	}
	s.byID[sub.ID] = sub.Clone()
	return nil
}

func (s *memorySubOrders) GetByID(id int64) (*model.SubOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.byID[id].Clone(), nil
}

func (s *memorySubOrders) GetByExchangeOrderID(exchange, exchangeOrderID string) (*model.SubOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.byID {
		if sub.Exchange == exchange && sub.ExchangeOrderID != nil && *sub.ExchangeOrderID == exchangeOrderID {
			return sub.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memorySubOrders) GetOpen() ([]*model.SubOrder, error) {
	return s.filter(func(sub *model.SubOrder) bool {
		return sub.Status == model.StatusPrepare || sub.Status == model.StatusAccepted
	}), nil
}

func (s *memorySubOrders) GetToCheck() ([]*model.SubOrder, error) {
	return s.filter(func(sub *model.SubOrder) bool {
		return sub.Status == model.StatusAccepted && sub.ExchangeOrderID != nil
	}), nil
}

func (s *memorySubOrders) GetToResend() ([]*model.SubOrder, error) {
	return s.filter(func(sub *model.SubOrder) bool {
		return sub.Status.IsTerminal() && !sub.SentToAggregator
	}), nil
}

func (s *memorySubOrders) filter(pred func(*model.SubOrder) bool) []*model.SubOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.SubOrder, 0)
	for _, sub := range s.byID {
		if pred(sub) {
			result = append(result, sub.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// --- trades ---

type memoryTrades struct {
	mu   sync.RWMutex
	byID map[string]*model.Trade // key: exchange|exchangeOrderID
}

func newMemoryTrades() *memoryTrades {
	return &memoryTrades{byID: make(map[string]*model.Trade)}
}

func tradeKey(exchange, exchangeOrderID string) string {
	return exchange + "|" + exchangeOrderID
}

func (t *memoryTrades) Insert(trade *model.Trade) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byID[tradeKey(trade.Exchange, trade.ExchangeOrderID)] = trade.Clone()
	return nil
}

func (t *memoryTrades) GetBySubOrder(exchange, exchangeOrderID string) (*model.Trade, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.byID[tradeKey(exchange, exchangeOrderID)].Clone(), nil
}

// --- withdrawals ---

type memoryWithdrawals struct {
	mu   sync.RWMutex
	byID map[string]*model.Withdrawal
}

func newMemoryWithdrawals() *memoryWithdrawals {
	return &memoryWithdrawals{byID: make(map[string]*model.Withdrawal)}
}

func (w *memoryWithdrawals) Insert(withdrawal *model.Withdrawal) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.byID[withdrawal.ExchangeWithdrawID] = withdrawal.Clone()
	return nil
}

func (w *memoryWithdrawals) UpdateStatus(exchangeWithdrawID string, status model.WithdrawalStatus) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, ok := w.byID[exchangeWithdrawID]
	if !ok {
		return fmt.Errorf("withdrawal %s not found", exchangeWithdrawID)
	}
	if existing.Status.IsTerminal() {
		return nil
	}
	existing.Status = status
	return nil
}

func (w *memoryWithdrawals) GetToCheck() ([]*model.Withdrawal, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]*model.Withdrawal, 0)
	for _, withdrawal := range w.byID {
		if withdrawal.Status == model.WithdrawalPending {
			result = append(result, withdrawal.Clone())
		}
	}
	return result, nil
}

// --- transactions ---

type memoryTransactions struct {
	mu   sync.RWMutex
	byID map[string]*model.Transaction
}

func newMemoryTransactions() *memoryTransactions {
	return &memoryTransactions{byID: make(map[string]*model.Transaction)}
}

func (t *memoryTransactions) Insert(tx *model.Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byID[tx.TransactionHash] = tx.Clone()
	return nil
}

func (t *memoryTransactions) UpdateStatus(txHash string, status model.TransactionStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.byID[txHash]
	if !ok {
		return fmt.Errorf("transaction %s not found", txHash)
	}
	if existing.Status.IsTerminal() {
		return nil
	}
	existing.Status = status
	return nil
}

func (t *memoryTransactions) GetPending() ([]*model.Transaction, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*model.Transaction, 0)
	for _, tx := range t.byID {
		if tx.Status == model.TxPending {
			result = append(result, tx.Clone())
		}
	}
	return result, nil
}
