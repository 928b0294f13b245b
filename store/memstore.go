package store

import (
	"context"
	"slices"
	"sync"

	"github.com/termwatch/termwatch/channel"
)

// MemStore is an in-memory implementation of the Store interface, for tests
// and local development.
type MemStore struct {
	lk       sync.Mutex
	accounts []Account
	channels []channel.Ref
	terms    []string
	mode     Mode
	stats    map[string]map[string]int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		mode:  ModeTest,
		stats: make(map[string]map[string]int64),
	}
}

func (s *MemStore) Read(ctx context.Context) (*Snapshot, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	snap := &Snapshot{
		Accounts: slices.Clone(s.accounts),
		Channels: slices.Clone(s.channels),
		Terms:    slices.Clone(s.terms),
		Mode:     s.mode,
		Stats:    make(map[string]map[string]int64, len(s.stats)),
	}
	for ch, m := range s.stats {
		cp := make(map[string]int64, len(m))
		for term, n := range m {
			cp[term] = n
		}
		snap.Stats[ch] = cp
	}
	return snap, nil
}

func (s *MemStore) AddAccount(ctx context.Context, acct Account) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, a := range s.accounts {
		if a.ID == acct.ID {
			return nil
		}
	}
	s.accounts = append(s.accounts, acct)
	return nil
}

func (s *MemStore) RemoveAccount(ctx context.Context, accountID string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.accounts = slices.DeleteFunc(s.accounts, func(a Account) bool {
		return a.ID == accountID
	})
	return nil
}

func (s *MemStore) AddChannel(ctx context.Context, ref channel.Ref) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if slices.Contains(s.channels, ref) {
		return nil
	}
	s.channels = append(s.channels, ref)
	return nil
}

func (s *MemStore) RemoveChannel(ctx context.Context, ref channel.Ref) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.channels = slices.DeleteFunc(s.channels, func(r channel.Ref) bool {
		return r == ref
	})
	delete(s.stats, ref.String())
	return nil
}

func (s *MemStore) AddTerms(ctx context.Context, terms []string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	for _, term := range terms {
		term = NormalizeTerm(term)
		if term == "" || slices.Contains(s.terms, term) {
			continue
		}
		s.terms = append(s.terms, term)
	}
	return nil
}

func (s *MemStore) RemoveTerms(ctx context.Context, terms []string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.terms = slices.DeleteFunc(s.terms, func(t string) bool {
		for _, rm := range terms {
			if NormalizeTerm(rm) == t {
				return true
			}
		}
		return false
	})
	return nil
}

func (s *MemStore) SetMode(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	s.mode = mode
	return nil
}

func (s *MemStore) IncrementStat(ctx context.Context, channelKey, term string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	m, ok := s.stats[channelKey]
	if !ok {
		m = make(map[string]int64)
		s.stats[channelKey] = m
	}
	m[term]++
	return nil
}

func (s *MemStore) ClearStats(ctx context.Context) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.stats = make(map[string]map[string]int64)
	return nil
}

var _ Store = (*MemStore)(nil)
