package recruit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/NicolasHaas/partyvc/pkg/model"
)

// sessionStore indexes live sessions by id and by channel. It is not safe
// for concurrent use; the engine loop owns it.
type sessionStore struct {
	byID      map[string]*model.Session
	byChannel map[string]string // channel id -> session id
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		byID:      make(map[string]*model.Session),
		byChannel: make(map[string]string),
	}
}

func (s *sessionStore) create(sess model.Session) error {
	if _, ok := s.byChannel[sess.ChannelID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, sess.ChannelID)
	}
	if _, ok := s.byID[sess.ID]; ok {
		return fmt.Errorf("recruit: duplicate session id %s", sess.ID)
	}
	c := sess.Clone()
	s.byID[sess.ID] = &c
	s.byChannel[sess.ChannelID] = sess.ID
	return nil
}

func (s *sessionStore) get(id string) (*model.Session, bool) {
	sess, ok := s.byID[id]
	return sess, ok
}

// mutate applies fn to the stored session. fn must not change ChannelID.
func (s *sessionStore) mutate(id string, fn func(*model.Session)) error {
	sess, ok := s.byID[id]
	if !ok {
		return ErrSessionGone
	}
	channel := sess.ChannelID
	fn(sess)
	sess.ChannelID = channel
	return nil
}

// remove deletes and returns the session. The second result is false if it
// was already gone.
func (s *sessionStore) remove(id string) (model.Session, bool) {
	sess, ok := s.byID[id]
	if !ok {
		return model.Session{}, false
	}
	delete(s.byID, id)
	delete(s.byChannel, sess.ChannelID)
	return *sess, true
}

func (s *sessionStore) forChannel(channelID string) (*model.Session, bool) {
	id, ok := s.byChannel[channelID]
	if !ok {
		return nil, false
	}
	return s.get(id)
}

// all returns copies of every session ordered by creation time.
func (s *sessionStore) all() []model.Session {
	out := make([]model.Session, 0, len(s.byID))
	for _, sess := range s.byID {
		out = append(out, sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *sessionStore) len() int {
	return len(s.byID)
}

// saveQueue is an unbounded FIFO of session snapshots. push never blocks,
// so the loop does not wait on storage.
type saveQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  [][]model.Session
	closed bool
}

func newSaveQueue() *saveQueue {
	q := &saveQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *saveQueue) push(snapshot []model.Session) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, snapshot)
	q.cond.Signal()
}

// pop blocks until a snapshot is available. It returns false once the queue
// is closed and drained.
func (q *saveQueue) pop() ([]model.Session, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item, true
}

func (q *saveQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
