// Package intents keeps a write-ahead log of order intents, written before
// the first external call of an order and on every later transition.
package intents

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

const (
	DefaultDir   = "./wal/intents"
	keyPrefix    = "order_intent_"
	segmentLimit = 1000
	maxSegments  = 100
)

var ErrNotFound = errors.New("order intent not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusRejected  Status = "rejected"
	StatusConfirmed Status = "confirmed"
	StatusJournaled Status = "journaled"
	StatusDiverged  Status = "diverged"
	StatusFailed    Status = "failed"
)

// Open reports whether the intent may still change outcome.
func (s Status) Open() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusConfirmed:
		return true
	}
	return false
}

type Intent struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Address   string           `json:"address,omitempty"`
	Side      domain.TradeType `json:"side"`
	Symbol    string           `json:"symbol"`
	Amount    decimal.Decimal  `json:"amount"`
	Value     decimal.Decimal  `json:"value"`
	Route     domain.Route     `json:"route"`
	Status    Status           `json:"status"`
	TxHash    string           `json:"tx_hash,omitempty"`
	EntryID   string           `json:"entry_id,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Change mutates an intent during a transition.
type Change func(*Intent)

func WithTxHash(hash string) Change { return func(i *Intent) { i.TxHash = hash } }

func WithEntryID(id string) Change { return func(i *Intent) { i.EntryID = id } }

func WithError(err error) Change {
	return func(i *Intent) {
		if err != nil {
			i.Error = err.Error()
		} else {
			i.Error = ""
		}
	}
}

// Store is safe for concurrent use. The latest record per intent id wins on replay.
type Store struct {
	wal   *gowal.Wal
	mu    sync.RWMutex
	index map[string]*Intent
	now   func() time.Time
}

// Open opens the WAL in dir and replays intents from it.
func Open(dir string, l *zap.Logger) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if l == nil {
		l = zap.NewNop()
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "intent_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init intent WAL")
	}

	s := &Store{wal: wal, index: make(map[string]*Intent), now: time.Now}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, keyPrefix) {
			continue
		}
		var intent Intent
		if err := json.Unmarshal(msg.Value, &intent); err != nil {
			l.Error("failed to unmarshal order intent", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		s.index[intent.ID] = &intent
	}

	return s, nil
}

// Prepare records a new pending intent and returns it with id and timestamps set.
func (s *Store) Prepare(in Intent) (Intent, error) {
	now := s.now().UTC()
	in.ID = uuid.New().String()
	in.Status = StatusPending
	in.CreatedAt = now
	in.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(&in); err != nil {
		return Intent{}, err
	}
	stored := in
	s.index[in.ID] = &stored
	return in, nil
}

// Advance moves the intent to status and applies changes.
func (s *Store) Advance(id string, status Status, changes ...Change) (Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.index[id]
	if !ok {
		return Intent{}, errors.Wrap(ErrNotFound, id)
	}
	next := *cur
	next.Status = status
	for _, c := range changes {
		c(&next)
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.persist(&next); err != nil {
		return Intent{}, err
	}
	*cur = next
	return next, nil
}

func (s *Store) Get(id string) (Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.index[id]
	if !ok {
		return Intent{}, errors.Wrap(ErrNotFound, id)
	}
	return *in, nil
}

// ByStatus returns intents in any of statuses, oldest first.
func (s *Store) ByStatus(statuses ...Status) []Intent {
	want := make(map[Status]struct{}, len(statuses))
	for _, st := range statuses {
		want[st] = struct{}{}
	}

	s.mu.RLock()
	out := make([]Intent, 0)
	for _, in := range s.index {
		if _, ok := want[in.Status]; ok {
			out = append(out, *in)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

func (s *Store) persist(intent *Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "marshal order intent")
	}
	key := fmt.Sprintf("%s%s", keyPrefix, intent.ID)
	nextIndex := s.wal.CurrentIndex() + 1
	return errors.Wrap(s.wal.Write(nextIndex, key, data), "write order intent")
}
