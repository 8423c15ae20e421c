package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

var (
	ErrInvalidThread   = fmt.Errorf("%w: thread id is empty", contractx.ErrValidation)
	ErrSessionReleased = errors.New("thread session already released")
)

// Backend persists thread logs as append-only lists.
type Backend interface {
	Load(ctx context.Context, threadID string) ([]contractx.Message, error)
	Append(ctx context.Context, threadID string, msgs []contractx.Message) error
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// ThreadStore owns every ConversationState by thread id and serializes
// access per id. Different ids never share a lock. The lock is in-process;
// replicas sharing a Redis or Upstash backend also need WithLeaser.
type ThreadStore struct {
	backend Backend
	leaser  Leaser

	mu    sync.Mutex
	locks map[string]*keyLock
}

type StoreOption func(*ThreadStore)

// WithLeaser makes every lock also hold a lease shared by all instances
// using the same backend.
func WithLeaser(l Leaser) StoreOption {
	return func(s *ThreadStore) {
		s.leaser = l
	}
}

func NewThreadStore(backend Backend, opts ...StoreOption) (*ThreadStore, error) {
	if backend == nil {
		return nil, errors.New("thread backend is required")
	}
	s := &ThreadStore{
		backend: backend,
		locks:   make(map[string]*keyLock),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func normalizeThreadID(threadID string) (string, error) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return "", ErrInvalidThread
	}
	return id, nil
}

func (s *ThreadStore) lock(ctx context.Context, threadID string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[threadID]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		s.locks[threadID] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		s.release(threadID, l)
		return nil, ctx.Err()
	}

	releaseLease := func() {}
	if s.leaser != nil {
		rel, err := s.leaser.Lease(ctx, threadID)
		if err != nil {
			<-l.ch
			s.release(threadID, l)
			return nil, err
		}
		releaseLease = rel
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseLease()
			<-l.ch
			s.release(threadID, l)
		})
	}, nil
}

func (s *ThreadStore) release(threadID string, l *keyLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, threadID)
	}
}

// Get returns a snapshot of the thread; unknown threads yield an empty state.
func (s *ThreadStore) Get(ctx context.Context, threadID string) (ConversationState, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return ConversationState{}, err
	}
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return ConversationState{}, err
	}
	defer unlock()

	msgs, err := s.backend.Load(ctx, id)
	if err != nil {
		return ConversationState{}, err
	}
	return ConversationState{ThreadID: id, Messages: msgs}, nil
}

// Append atomically appends msgs to the thread.
func (s *ThreadStore) Append(ctx context.Context, threadID string, msgs ...contractx.Message) error {
	sess, err := s.Acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer sess.Release()
	return sess.Append(ctx, msgs...)
}

// Acquire locks the thread for a whole turn and loads its state. The caller
// must Release the session.
func (s *ThreadStore) Acquire(ctx context.Context, threadID string) (*Session, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}

	msgs, err := s.backend.Load(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	return &Session{
		backend: s.backend,
		state:   ConversationState{ThreadID: id, Messages: msgs},
		unlock:  unlock,
	}, nil
}

// Session is exclusive access to one thread.
type Session struct {
	backend Backend
	state   ConversationState
	unlock  func()

	released bool
}

func (s *Session) ThreadID() string {
	return s.state.ThreadID
}

// State returns a copy of the current log.
func (s *Session) State() ConversationState {
	return s.state.clone()
}

func (s *Session) Len() int {
	return len(s.state.Messages)
}

// Append validates and durably appends msgs, in order, to the thread.
func (s *Session) Append(ctx context.Context, msgs ...contractx.Message) error {
	if s.released {
		return ErrSessionReleased
	}
	if len(msgs) == 0 {
		return nil
	}
	for i, m := range msgs {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	batch := contractx.CloneMessages(msgs)
	if err := s.backend.Append(ctx, s.state.ThreadID, batch); err != nil {
		return err
	}
	s.state.Messages = append(s.state.Messages, batch...)
	return nil
}

func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	s.unlock()
}
