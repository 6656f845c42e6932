package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stakehouse/events"
	"stakehouse/lock"
	"stakehouse/models"
	"stakehouse/money"
	"stakehouse/scheduler"
)

// memState is everything the in-memory store persists
type memState struct {
	rooms       map[uuid.UUID]models.Room
	players     []models.RoomPlayer
	settlements map[uuid.UUID]models.Settlement
	accounts    map[models.AccountRef]models.Account
	entries     []models.LedgerEntry
	stakes      map[uuid.UUID]models.Stake
	nextID      int64
}

func (s *memState) clone() *memState {
	c := &memState{
		rooms:       make(map[uuid.UUID]models.Room, len(s.rooms)),
		players:     append([]models.RoomPlayer(nil), s.players...),
		settlements: make(map[uuid.UUID]models.Settlement, len(s.settlements)),
		accounts:    make(map[models.AccountRef]models.Account, len(s.accounts)),
		entries:     append([]models.LedgerEntry(nil), s.entries...),
		stakes:      make(map[uuid.UUID]models.Stake, len(s.stakes)),
		nextID:      s.nextID,
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.settlements {
		c.settlements[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.stakes {
		c.stakes[k] = v
	}
	return c
}

// memStore is a transactional in-memory database. A unit of work holds
// the store exclusively from Begin until Commit or Rollback.
type memStore struct {
	mu        sync.Mutex
	state     *memState
	published []events.Event

	failAppend error
}

func newMemStore() *memStore {
	return &memStore{state: (&memState{}).clone()}
}

func (s *memStore) Create() UnitOfWork {
	return &memUoW{store: s}
}

func (s *memStore) id() int64 {
	s.state.nextID++
	return s.state.nextID
}

// seedRoom inserts room outside any transaction
func (s *memStore) seedRoom(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.rooms[room.ID] = *room
}

// deposit credits amount outside any transaction
func (s *memStore) deposit(userID uuid.UUID, currency models.Currency, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := models.AccountRef{UserID: userID, Currency: currency}
	acc := s.ensureAccount(ref)
	s.state.entries = append(s.state.entries, models.LedgerEntry{
		ID:        s.id(),
		AccountID: acc.ID,
		UserID:    userID,
		Currency:  currency,
		Type:      models.EntryDeposit,
		Amount:    amount,
		RefType:   models.RefTypeDeposit,
		RefID:     uuid.NewString(),
		CreatedAt: time.Now(),
	})
}

func (s *memStore) ensureAccount(ref models.AccountRef) models.Account {
	acc, ok := s.state.accounts[ref]
	if !ok {
		acc = models.Account{ID: s.id(), UserID: ref.UserID, Currency: ref.Currency, CreatedAt: time.Now()}
		s.state.accounts[ref] = acc
	}
	return acc
}

func (s *memStore) balance(ref models.AccountRef) int64 {
	var sum int64
	for _, e := range s.state.entries {
		if e.UserID == ref.UserID && e.Currency == ref.Currency {
			sum += e.Amount
		}
	}
	return sum
}

// Balance reads a committed balance
func (s *memStore) Balance(userID uuid.UUID, currency models.Currency) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance(models.AccountRef{UserID: userID, Currency: currency})
}

// Room reads a committed room
func (s *memStore) Room(id uuid.UUID) (models.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.rooms[id]
	return r, ok
}

// Rooms returns every committed room
func (s *memStore) Rooms() []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rooms []models.Room
	for _, r := range s.state.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Entries returns committed entries matching entryType, or all when empty
func (s *memStore) Entries(entryType models.EntryType) []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range s.state.entries {
		if entryType == "" || e.Type == entryType {
			out = append(out, e)
		}
	}
	return out
}

// Settlement reads a committed settlement
func (s *memStore) Settlement(roomID uuid.UUID) (models.Settlement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.settlements[roomID]
	return st, ok
}

// PlayerCount counts committed join records
func (s *memStore) PlayerCount(roomID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.state.players {
		if p.RoomID == roomID {
			n++
		}
	}
	return n
}

// Published returns events flushed by committed units of work
func (s *memStore) Published() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.published...)
}

type memUoW struct {
	store    *memStore
	snapshot *memState
	pending  []events.Event
	active   bool
}

func (u *memUoW) Begin(ctx context.Context) error {
	u.store.mu.Lock()
	u.snapshot = u.store.state.clone()
	u.active = true
	return nil
}

func (u *memUoW) Commit() error {
	if !u.active {
		return errors.New("no transaction")
	}
	u.store.published = append(u.store.published, u.pending...)
	u.pending = nil
	u.active = false
	u.store.mu.Unlock()
	return nil
}

func (u *memUoW) Rollback() error {
	if !u.active {
		return nil
	}
	u.store.state = u.snapshot
	u.pending = nil
	u.active = false
	u.store.mu.Unlock()
	return nil
}

func (u *memUoW) RoomRepository() RoomRepository             { return memRooms{u.store} }
func (u *memUoW) RoomPlayerRepository() RoomPlayerRepository { return memPlayers{u.store} }
func (u *memUoW) SettlementRepository() SettlementRepository { return memSettlements{u.store} }
func (u *memUoW) LedgerRepository() LedgerRepository         { return memLedger{u.store} }
func (u *memUoW) StakeRepository() StakeRepository           { return memStakes{u.store} }
func (u *memUoW) EventBus() EventPublisher                   { return u }

func (u *memUoW) Publish(e events.Event) {
	u.pending = append(u.pending, e)
}

type memRooms struct{ s *memStore }

func (r memRooms) Create(ctx context.Context, room *models.Room) error {
	r.s.state.rooms[room.ID] = *room
	return nil
}

func (r memRooms) CreateSystemIfAbsent(ctx context.Context, room *models.Room) (bool, error) {
	for _, existing := range r.s.state.rooms {
		if existing.IsSystem() && existing.IsJoinable() &&
			existing.Currency == room.Currency && existing.Game == room.Game && existing.StakeAmount == room.StakeAmount {
			return false, nil
		}
	}
	r.s.state.rooms[room.ID] = *room
	return true, nil
}

func (r memRooms) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room, ok := r.s.state.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

func (r memRooms) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return r.GetByID(ctx, id)
}

func (r memRooms) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.RoomStatus) error {
	room, ok := r.s.state.rooms[id]
	if !ok || room.Status != from {
		return models.ErrStatusConflict
	}
	room.Status = to
	r.s.state.rooms[id] = room
	return nil
}

func (r memRooms) MarkSettled(ctx context.Context, id uuid.UUID, nonce int64) error {
	room, ok := r.s.state.rooms[id]
	if !ok || room.Status != models.RoomStatusRunning {
		return models.ErrStatusConflict
	}
	room.Status = models.RoomStatusSettled
	room.Nonce = nonce
	r.s.state.rooms[id] = room
	return nil
}

func (r memRooms) FindActiveSystemRoom(ctx context.Context, currency models.Currency, game models.GameKind, stake int64) (*models.Room, error) {
	for _, room := range r.s.state.rooms {
		if room.IsSystem() && room.IsJoinable() && room.Currency == currency && room.Game == game && room.StakeAmount == stake {
			return &room, nil
		}
	}
	return nil, nil
}

func (r memRooms) ListActive(ctx context.Context, filter models.RoomFilter, limit int) ([]*models.RoomSummary, error) {
	var rooms []models.Room
	for _, room := range r.s.state.rooms {
		switch {
		case room.Status.IsTerminal() || room.Status == models.RoomStatusCancelled:
			continue
		case filter.Currency != nil && room.Currency != *filter.Currency:
			continue
		case filter.Game != nil && room.Game != *filter.Game:
			continue
		case filter.Kind != nil && room.Kind != *filter.Kind:
			continue
		}
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].IsSystem() != rooms[j].IsSystem() {
			return rooms[i].IsSystem()
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	if len(rooms) > limit {
		rooms = rooms[:limit]
	}

	out := make([]*models.RoomSummary, 0, len(rooms))
	for i := range rooms {
		summary := summarize(&rooms[i], memPlayers{r.s}.count(rooms[i].ID))
		out = append(out, &summary)
	}
	return out, nil
}

type memPlayers struct{ s *memStore }

func (p memPlayers) count(roomID uuid.UUID) int {
	n := 0
	for _, pl := range p.s.state.players {
		if pl.RoomID == roomID {
			n++
		}
	}
	return n
}

func (p memPlayers) Create(ctx context.Context, player *models.RoomPlayer) error {
	for _, existing := range p.s.state.players {
		if existing.RoomID == player.RoomID && existing.UserID == player.UserID {
			return errors.New("duplicate join")
		}
	}
	player.ID = p.s.id()
	p.s.state.players = append(p.s.state.players, *player)
	return nil
}

func (p memPlayers) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.RoomPlayer, error) {
	var out []*models.RoomPlayer
	for _, pl := range p.s.state.players {
		if pl.RoomID == roomID {
			pl := pl
			out = append(out, &pl)
		}
	}
	return out, nil
}

type memSettlements struct{ s *memStore }

func (m memSettlements) Create(ctx context.Context, settlement *models.Settlement) error {
	if _, ok := m.s.state.settlements[settlement.RoomID]; ok {
		return errors.New("duplicate settlement")
	}
	settlement.ID = m.s.id()
	m.s.state.settlements[settlement.RoomID] = *settlement
	return nil
}

func (m memSettlements) GetByRoom(ctx context.Context, roomID uuid.UUID) (*models.Settlement, error) {
	st, ok := m.s.state.settlements[roomID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m memSettlements) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.HistoryItem, error) {
	var items []*models.HistoryItem
	for _, pl := range m.s.state.players {
		if pl.UserID != userID {
			continue
		}
		st, ok := m.s.state.settlements[pl.RoomID]
		if !ok {
			continue
		}
		room := m.s.state.rooms[pl.RoomID]
		items = append(items, &models.HistoryItem{
			SettlementID:   st.ID,
			RoomID:         room.ID,
			Game:           room.Game,
			Currency:       room.Currency,
			StakeAmount:    money.FromNano(room.StakeAmount),
			StartedAt:      room.CreatedAt,
			SettledAt:      st.SettledAt,
			Outcome:        st.Outcome,
			ServerSeedHash: room.ServerSeedHash,
			Reveal: models.Reveal{
				ServerSeed: st.RevealServerSeed,
				ClientSeed: st.RevealClientSeed,
				Nonce:      st.RevealNonce,
			},
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SettlementID > items[j].SettlementID })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type memLedger struct{ s *memStore }

func (l memLedger) EnsureAccount(ctx context.Context, ref models.AccountRef) (*models.Account, error) {
	acc := l.s.ensureAccount(ref)
	return &acc, nil
}

func (l memLedger) LockAccount(ctx context.Context, ref models.AccountRef) (*models.Account, error) {
	return l.EnsureAccount(ctx, ref)
}

func (l memLedger) Balance(ctx context.Context, ref models.AccountRef) (int64, error) {
	return l.s.balance(ref), nil
}

func (l memLedger) Append(ctx context.Context, entry *models.LedgerEntry) error {
	if l.s.failAppend != nil {
		return l.s.failAppend
	}
	entry.ID = l.s.id()
	entry.CreatedAt = time.Now()
	l.s.state.entries = append(l.s.state.entries, *entry)
	return nil
}

func (l memLedger) FindByReference(ctx context.Context, entryType models.EntryType, refType, refID string) (*models.LedgerEntry, error) {
	for _, e := range l.s.state.entries {
		if e.Type == entryType && e.RefType == refType && e.RefID == refID {
			return &e, nil
		}
	}
	return nil, nil
}

func (l memLedger) ListByAccount(ctx context.Context, ref models.AccountRef, limit int) ([]*models.LedgerEntry, error) {
	var out []*models.LedgerEntry
	for i := len(l.s.state.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.s.state.entries[i]
		if e.UserID == ref.UserID && e.Currency == ref.Currency {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (l memLedger) BalancesByUser(ctx context.Context, userID uuid.UUID) (map[models.Currency]int64, error) {
	out := map[models.Currency]int64{}
	for _, e := range l.s.state.entries {
		if e.UserID == userID {
			out[e.Currency] += e.Amount
		}
	}
	return out, nil
}

type memStakes struct{ s *memStore }

func (m memStakes) Create(ctx context.Context, stake *models.Stake) error {
	m.s.state.stakes[stake.ID] = *stake
	return nil
}

func (m memStakes) GetForUserForUpdate(ctx context.Context, userID, stakeID uuid.UUID) (*models.Stake, error) {
	st, ok := m.s.state.stakes[stakeID]
	if !ok || st.UserID != userID {
		return nil, nil
	}
	return &st, nil
}

func (m memStakes) ListLockedForUpdate(ctx context.Context, userID uuid.UUID) ([]*models.Stake, error) {
	var out []*models.Stake
	for _, st := range m.s.state.stakes {
		if st.UserID == userID && st.Status == models.StakeStatusLocked {
			st := st
			out = append(out, &st)
		}
	}
	return out, nil
}

func (m memStakes) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Stake, error) {
	var out []*models.Stake
	for _, st := range m.s.state.stakes {
		if st.UserID == userID {
			st := st
			out = append(out, &st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LockedAt.After(out[j].LockedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memStakes) Update(ctx context.Context, stake *models.Stake) error {
	if _, ok := m.s.state.stakes[stake.ID]; !ok {
		return errors.New("stake not found")
	}
	m.s.state.stakes[stake.ID] = *stake
	return nil
}

// memLocker is a process-local lock.Locker
type memLocker struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func newMemLocker() *memLocker {
	return &memLocker{keys: map[string]chan struct{}{}}
}

func (l *memLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.keys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.keys[key] = ch
	}
	return ch
}

func (l *memLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (lock.Lease, error) {
	ch := l.sem(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return &memLease{key: key, ch: ch}, nil
	case <-timer.C:
		return nil, lock.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memLease struct {
	key  string
	ch   chan struct{}
	once sync.Once
}

func (l *memLease) Key() string { return l.key }

func (l *memLease) Release(ctx context.Context) error {
	err := lock.ErrNotHeld
	l.once.Do(func() {
		<-l.ch
		err = nil
	})
	return err
}

type scheduledJob struct {
	Kind   scheduler.Kind
	RoomID uuid.UUID
	Delay  time.Duration
}

// memScheduler records scheduled triggers
type memScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
	err  error
}

func (s *memScheduler) Schedule(ctx context.Context, kind scheduler.Kind, roomID uuid.UUID, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, scheduledJob{Kind: kind, RoomID: roomID, Delay: delay})
	return nil
}

func (s *memScheduler) Jobs(kind scheduler.Kind) []scheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduledJob
	for _, j := range s.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}
