// Package memory implements progression.Store in process memory.
// Every transaction works on a private copy of the state that replaces the
// live state only when the transaction function returns nil, so a failed or
// panicking transaction leaves nothing behind. Transactions are serialised
// by a single mutex.
//
// Catalog methods may be called inside a transaction; Reader and
// BadgeRepository methods may not.
//
// The store is used by the test suites and by the server when no database
// is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/domain/shared"
)

// Operation names accepted by FailOn.
const (
	OpCommit           = "Commit"
	OpCreateStudent    = "CreateStudent"
	OpLockStudent      = "LockStudent"
	OpSaveStudent      = "SaveStudent"
	OpSpendCoins       = "SpendCoins"
	OpInsertCompletion = "InsertCompletion"
	OpInsertHintUnlock = "InsertHintUnlock"
	OpInsertOwnership  = "InsertOwnership"
	OpAppendLedger     = "AppendLedger"
	OpInsertBadge      = "InsertStudentBadge"
)

type hintKey struct {
	studentID string
	lessonID  string
	level     int
}

type state struct {
	students      map[string]*progression.Student
	completions   map[string]map[string]progression.Completion
	hints         map[hintKey]progression.HintUnlock
	owned         map[string]map[string]progression.Ownership
	studentBadges map[string][]progression.StudentBadge
	ledger        []progression.LedgerEntry
}

func newState() *state {
	return &state{
		students:      make(map[string]*progression.Student),
		completions:   make(map[string]map[string]progression.Completion),
		hints:         make(map[hintKey]progression.HintUnlock),
		owned:         make(map[string]map[string]progression.Ownership),
		studentBadges: make(map[string][]progression.StudentBadge),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, st := range s.students {
		c.students[id] = st.Clone()
	}
	for sid, byActivity := range s.completions {
		m := make(map[string]progression.Completion, len(byActivity))
		for aid, cp := range byActivity {
			m[aid] = cp
		}
		c.completions[sid] = m
	}
	for k, v := range s.hints {
		c.hints[k] = v
	}
	for sid, items := range s.owned {
		m := make(map[string]progression.Ownership, len(items))
		for cid, o := range items {
			m[cid] = o
		}
		c.owned[sid] = m
	}
	for sid, badges := range s.studentBadges {
		c.studentBadges[sid] = append([]progression.StudentBadge(nil), badges...)
	}
	c.ledger = append([]progression.LedgerEntry(nil), s.ledger...)
	return c
}

type failure struct {
	err       error
	remaining int // <= 0 means every call fails
}

// Store is an in-memory progression.Store.
type Store struct {
	mu       sync.Mutex
	state    *state
	failures map[string]*failure

	catalogMu  sync.RWMutex
	worlds     map[string]progression.World
	activities map[string]progression.Activity
	cosmetics  map[string]progression.Cosmetic
	badges     []progression.Badge
}

var (
	_ progression.Store         = (*Store)(nil)
	_ progression.CatalogSeeder = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		state:      newState(),
		failures:   make(map[string]*failure),
		worlds:     make(map[string]progression.World),
		activities: make(map[string]progression.Activity),
		cosmetics:  make(map[string]progression.Cosmetic),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Failure injection
// ──────────────────────────────────────────────────────────────────────────────

// FailOn makes the named operation return err. times limits how many calls
// fail; zero or less fails every call until ClearFailures.
func (s *Store) FailOn(op string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = &failure{err: err, remaining: times}
}

// ClearFailures removes all injected failures.
func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]*failure)
}

// check must be called with mu held.
func (s *Store) check(op string) error {
	f, ok := s.failures[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.failures, op)
		}
	}
	return f.err
}

// ──────────────────────────────────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────────────────────────────────

// WithTx implements progression.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx progression.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, st: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := s.check(OpCommit); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// Ping implements progression.Store.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type memTx struct {
	store *Store
	st    *state
}

func (t *memTx) CreateStudent(ctx context.Context, s *progression.Student) error {
	if err := t.store.check(OpCreateStudent); err != nil {
		return err
	}
	if _, ok := t.st.students[s.ID]; ok {
		return progression.ErrStudentExists
	}
	t.st.students[s.ID] = s.Clone()
	return nil
}

func (t *memTx) LockStudent(ctx context.Context, id string) (*progression.Student, error) {
	if err := t.store.check(OpLockStudent); err != nil {
		return nil, err
	}
	s, ok := t.st.students[id]
	if !ok {
		return nil, progression.ErrStudentNotFound
	}
	return s.Clone(), nil
}

func (t *memTx) SaveStudent(ctx context.Context, s *progression.Student) error {
	if err := t.store.check(OpSaveStudent); err != nil {
		return err
	}
	cur, ok := t.st.students[s.ID]
	if !ok {
		return progression.ErrStudentNotFound
	}
	if cur.Version != s.Version {
		return fmt.Errorf("memory: save student %s: %w", s.ID, shared.ErrConcurrentModification)
	}
	s.Version++
	t.st.students[s.ID] = s.Clone()
	return nil
}

func (t *memTx) SpendCoins(ctx context.Context, studentID string, amount int64) (int64, error) {
	if err := t.store.check(OpSpendCoins); err != nil {
		return 0, err
	}
	cur, ok := t.st.students[studentID]
	if !ok {
		return 0, progression.ErrStudentNotFound
	}
	if err := progression.Spend(cur, amount); err != nil {
		return cur.Coins, err
	}
	return cur.Coins, nil
}

func (t *memTx) GetCompletion(ctx context.Context, studentID, activityID string) (*progression.Completion, error) {
	cp, ok := t.st.completions[studentID][activityID]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (t *memTx) InsertCompletion(ctx context.Context, c progression.Completion) (bool, error) {
	if err := t.store.check(OpInsertCompletion); err != nil {
		return false, err
	}
	byActivity, ok := t.st.completions[c.StudentID]
	if !ok {
		byActivity = make(map[string]progression.Completion)
		t.st.completions[c.StudentID] = byActivity
	}
	if _, exists := byActivity[c.ActivityID]; exists {
		return false, nil
	}
	byActivity[c.ActivityID] = c
	return true, nil
}

func (t *memTx) HighestHintLevel(ctx context.Context, studentID, lessonID string) (int, error) {
	highest := 0
	for level := 1; level <= progression.MaxHintLevel; level++ {
		if _, ok := t.st.hints[hintKey{studentID, lessonID, level}]; ok {
			highest = level
		}
	}
	return highest, nil
}

func (t *memTx) InsertHintUnlock(ctx context.Context, h progression.HintUnlock) (bool, error) {
	if err := t.store.check(OpInsertHintUnlock); err != nil {
		return false, err
	}
	key := hintKey{h.StudentID, h.LessonID, h.Level}
	if _, ok := t.st.hints[key]; ok {
		return false, nil
	}
	t.st.hints[key] = h
	return true, nil
}

func (t *memTx) OwnsCosmetic(ctx context.Context, studentID, cosmeticID string) (bool, error) {
	_, ok := t.st.owned[studentID][cosmeticID]
	return ok, nil
}

func (t *memTx) InsertOwnership(ctx context.Context, o progression.Ownership) (bool, error) {
	if err := t.store.check(OpInsertOwnership); err != nil {
		return false, err
	}
	items, ok := t.st.owned[o.StudentID]
	if !ok {
		items = make(map[string]progression.Ownership)
		t.st.owned[o.StudentID] = items
	}
	if _, exists := items[o.CosmeticID]; exists {
		return false, nil
	}
	items[o.CosmeticID] = o
	return true, nil
}

func (t *memTx) AppendLedger(ctx context.Context, entries ...progression.LedgerEntry) error {
	if err := t.store.check(OpAppendLedger); err != nil {
		return err
	}
	t.st.ledger = append(t.st.ledger, entries...)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────────────────────────────────

// SeedCatalog implements progression.CatalogSeeder.
func (s *Store) SeedCatalog(ctx context.Context, c progression.CatalogContent) error {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	for _, w := range c.Worlds {
		s.worlds[w.ID] = w
	}
	for _, a := range c.Activities {
		s.activities[a.ID] = a
	}
	for _, item := range c.Cosmetics {
		s.cosmetics[item.ID] = item
	}
	for _, b := range c.Badges {
		replaced := false
		for i := range s.badges {
			if s.badges[i].ID == b.ID {
				s.badges[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			s.badges = append(s.badges, b)
		}
	}
	return nil
}

// GetActivity implements progression.Catalog.
func (s *Store) GetActivity(ctx context.Context, id string) (*progression.Activity, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	a, ok := s.activities[id]
	if !ok {
		return nil, progression.ErrInvalidActivity
	}
	return &a, nil
}

// GetCosmetic implements progression.Catalog.
func (s *Store) GetCosmetic(ctx context.Context, id string) (*progression.Cosmetic, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	c, ok := s.cosmetics[id]
	if !ok {
		return nil, progression.ErrInvalidActivity
	}
	return &c, nil
}

// ListBadges implements progression.Catalog.
func (s *Store) ListBadges(ctx context.Context) ([]progression.Badge, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	return append([]progression.Badge(nil), s.badges...), nil
}

// WorldLessons implements progression.Catalog.
func (s *Store) WorldLessons(ctx context.Context) (map[string][]string, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	content := progression.CatalogContent{}
	for _, w := range s.worlds {
		content.Worlds = append(content.Worlds, w)
	}
	for _, a := range s.activities {
		content.Activities = append(content.Activities, a)
	}
	return content.WorldLessons(), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// GetStudent implements progression.Reader.
func (s *Store) GetStudent(ctx context.Context, id string) (*progression.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.state.students[id]
	if !ok {
		return nil, progression.ErrStudentNotFound
	}
	return st.Clone(), nil
}

// ListCompletions implements progression.Reader.
func (s *Store) ListCompletions(ctx context.Context, studentID string) ([]progression.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]progression.Completion, 0, len(s.state.completions[studentID]))
	for _, cp := range s.state.completions[studentID] {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].ActivityID < out[j].ActivityID
		}
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out, nil
}

// CountOwnedCosmetics implements progression.Reader.
func (s *Store) CountOwnedCosmetics(ctx context.Context, studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.state.owned[studentID]), nil
}

// ListLedger implements progression.Reader.
func (s *Store) ListLedger(ctx context.Context, studentID string, limit int) ([]progression.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []progression.LedgerEntry
	for i := len(s.state.ledger) - 1; i >= 0; i-- {
		e := s.state.ledger[i]
		if e.StudentID != studentID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Ownerships returns the cosmetics owned by a student.
func (s *Store) Ownerships(studentID string) []progression.Ownership {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]progression.Ownership, 0, len(s.state.owned[studentID]))
	for _, o := range s.state.owned[studentID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CosmeticID < out[j].CosmeticID })
	return out
}

// HintUnlocks returns the hint tiers a student holds for a lesson, ascending.
func (s *Store) HintUnlocks(studentID, lessonID string) []progression.HintUnlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []progression.HintUnlock
	for level := 1; level <= progression.MaxHintLevel; level++ {
		if h, ok := s.state.hints[hintKey{studentID, lessonID, level}]; ok {
			out = append(out, h)
		}
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Badges
// ──────────────────────────────────────────────────────────────────────────────

// ListStudentBadges implements progression.BadgeRepository.
func (s *Store) ListStudentBadges(ctx context.Context, studentID string) ([]progression.StudentBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]progression.StudentBadge(nil), s.state.studentBadges[studentID]...), nil
}

// InsertStudentBadge implements progression.BadgeRepository.
func (s *Store) InsertStudentBadge(ctx context.Context, sb progression.StudentBadge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(OpInsertBadge); err != nil {
		return false, err
	}
	for _, existing := range s.state.studentBadges[sb.StudentID] {
		if existing.BadgeID == sb.BadgeID {
			return false, nil
		}
	}
	s.state.studentBadges[sb.StudentID] = append(s.state.studentBadges[sb.StudentID], sb)
	return true, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Leaderboard
// ──────────────────────────────────────────────────────────────────────────────

// Leaderboard implements progression.Reader.
func (s *Store) Leaderboard(ctx context.Context, q progression.LeaderboardQuery) ([]progression.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranked := s.rank(q)
	if q.Limit > 0 && len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}
	return ranked, nil
}

// StudentRank implements progression.Reader.
func (s *Store) StudentRank(ctx context.Context, q progression.LeaderboardQuery, studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.rank(q) {
		if e.StudentID == studentID {
			return e.Rank, nil
		}
	}
	return 0, nil
}

// rank must be called with mu held.
func (s *Store) rank(q progression.LeaderboardQuery) []progression.LeaderboardEntry {
	entries := make([]progression.LeaderboardEntry, 0, len(s.state.students))
	for id, st := range s.state.students {
		value, ok := s.metricValue(st, q.Metric, q.Since)
		if !ok {
			continue
		}
		entries = append(entries, progression.LeaderboardEntry{
			StudentID:   id,
			DisplayName: st.DisplayName,
			Value:       value,
			Level:       st.Level,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].StudentID < entries[j].StudentID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (s *Store) metricValue(st *progression.Student, metric progression.LeaderboardMetric, since *time.Time) (int64, bool) {
	if since != nil && metric.Windowed() {
		var sum int64
		found := false
		for _, cp := range s.state.completions[st.ID] {
			if cp.CompletedAt.Before(*since) {
				continue
			}
			found = true
			if metric == progression.MetricXP {
				sum += cp.XPEarned
			} else {
				sum += cp.CoinsEarned
			}
		}
		return sum, found
	}

	switch metric {
	case progression.MetricXP:
		return st.XP, true
	case progression.MetricCoins:
		return st.LifetimeCoins, true
	case progression.MetricLevel:
		return int64(st.Level), true
	case progression.MetricStreak:
		return int64(st.CurrentStreak), true
	default:
		return 0, false
	}
}
