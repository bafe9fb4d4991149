package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config bundles the collaborators a Machine needs. Storage and Bus are
// required; a nil Entitlement means nobody is premium and a nil Catalog
// accepts any value id.
type Config struct {
	Storage     Storage
	Entitlement Entitlement
	// Identity names the account storage is scoped to. A nil Identity means
	// one anonymous owner for the whole session.
	Identity Identity
	Catalog  Catalog
	Bus      *Bus
	Policy   Policy
	Logger   *zap.Logger
	// SaveTimeout bounds each background write. Defaults to 10s.
	SaveTimeout time.Duration
	// Clock stamps record versions. Defaults to time.Now.
	Clock func() time.Time
	// Writer identifies this session on persisted records. Defaults to a random UUID.
	Writer string
}

// Machine is the single source of truth for wizard progress. Mutations
// update memory synchronously, queue a background persist and emit events
// once the lock is released, so listeners may call back into the machine.
type Machine struct {
	storage     Storage
	entitlement Entitlement
	identity    Identity
	catalog     Catalog
	bus         *Bus
	policy      Policy
	logger      *zap.Logger
	clock       func() time.Time
	writer      string
	persist     *persister

	mu          sync.Mutex
	currentStep Step
	premium     bool
	owner       string
	selected    []string
	prioritized []string
	reflections map[string]string
	version     uint64
	closed      bool
}

// New validates cfg and starts the background persister.
func New(cfg Config) (*Machine, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("assessment: storage is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("assessment: event bus is required")
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	writer := strings.TrimSpace(cfg.Writer)
	if writer == "" {
		writer = uuid.NewString()
	}
	m := &Machine{
		storage:     cfg.Storage,
		entitlement: cfg.Entitlement,
		identity:    cfg.Identity,
		catalog:     cfg.Catalog,
		bus:         cfg.Bus,
		policy:      cfg.Policy.normalized(),
		logger:      logger,
		clock:       clock,
		writer:      writer,
		currentStep: StepIntroduction,
		reflections: map[string]string{},
	}
	guarded := ownerGuard{Storage: cfg.Storage, identity: cfg.Identity}
	m.persist = newPersister(guarded, cfg.SaveTimeout, m.handleSaved, m.handleSaveError)
	return m, nil
}

// Bus exposes the event bus the machine publishes on.
func (m *Machine) Bus() *Bus {
	return m.bus
}

// Policy returns the active gating policy.
func (m *Machine) Policy() Policy {
	return m.policy
}

// Initialize resolves entitlement, loads stored progress and reconciles the
// current step. Storage failures never abort startup: progress resets to
// empty and an error event with context loadProgress is emitted instead.
func (m *Machine) Initialize(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	premium, entErr := m.resolvePremium(ctx)
	owner := ownerOf(ctx, m.identity)
	loaded, loadErr := m.load(ctx)

	m.mu.Lock()
	m.premium = premium
	m.owner = owner
	step := m.applyLoadedLocked(loaded, loadErr)
	counts := m.countsLocked()
	total := TotalSteps(premium)
	m.mu.Unlock()

	if entErr != nil {
		m.logger.Warn("assessment: entitlement check failed, continuing without premium", zap.Error(entErr))
		m.bus.Emit(ErrorEvent{Context: ContextInitialization, Err: entErr})
	}
	if loadErr != nil {
		m.logger.Warn("assessment: load progress failed, starting fresh", zap.Error(loadErr))
		m.bus.Emit(ErrorEvent{Context: ContextLoadProgress, Err: loadErr})
	} else {
		m.bus.Emit(ProgressLoaded{
			CurrentStep:       step,
			SelectedValues:    counts.Selected,
			PrioritizedValues: counts.Prioritized,
		})
	}
	m.logger.Info("assessment: initialized",
		zap.Bool("premium", premium),
		zap.Int("step", int(step)),
		zap.Int("total_steps", total),
	)
	m.bus.Emit(Initialized{IsPremium: premium, CurrentStep: step, TotalSteps: total})
	return nil
}

func (m *Machine) resolvePremium(ctx context.Context) (bool, error) {
	if m.entitlement == nil || !m.entitlement.IsAuthenticated(ctx) {
		return false, nil
	}
	ok, err := m.entitlement.HasFeature(ctx, FeatureAIInsights)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func ownerOf(ctx context.Context, identity Identity) string {
	if identity == nil {
		return ""
	}
	id, ok := identity.OwnerID(ctx)
	if !ok {
		return ""
	}
	return strings.TrimSpace(id)
}

// progress is what load read back from storage.
type progress struct {
	selected    []string
	prioritized []string
	reflections map[string]string
	version     uint64
}

func (m *Machine) load(ctx context.Context) (progress, error) {
	var p progress
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := m.storage.SelectedValues(gctx)
		if err != nil {
			return fmt.Errorf("load selected values: %w", err)
		}
		p.selected = uniqueIDs(values)
		return nil
	})
	g.Go(func() error {
		values, err := m.storage.PrioritizedValues(gctx)
		if err != nil {
			return fmt.Errorf("load prioritized values: %w", err)
		}
		p.prioritized = uniqueIDs(values)
		return nil
	})
	g.Go(func() error {
		values, err := m.storage.ReflectionResponses(gctx)
		if err != nil {
			return fmt.Errorf("load reflections: %w", err)
		}
		p.reflections = cleanReflections(values)
		return nil
	})
	g.Go(func() error {
		version, err := m.storage.Version(gctx)
		if err != nil {
			return fmt.Errorf("load version: %w", err)
		}
		p.version = version
		return nil
	})
	if err := g.Wait(); err != nil {
		return progress{}, err
	}
	return p, nil
}

// applyLoadedLocked replaces the collections with loaded progress, or with
// empty ones when loading failed, and reconciles the current step. The
// version never moves backwards so later writes outrank what is stored.
func (m *Machine) applyLoadedLocked(p progress, loadErr error) Step {
	if loadErr != nil {
		m.selected = nil
		m.prioritized = nil
		m.reflections = map[string]string{}
		m.currentStep = StepIntroduction
		return m.currentStep
	}
	m.selected = p.selected
	m.prioritized = p.prioritized
	m.reflections = p.reflections
	if m.reflections == nil {
		m.reflections = map[string]string{}
	}
	if p.version > m.version {
		m.version = p.version
	}
	m.currentStep = m.policy.Reconcile(m.countsLocked(), m.premium)
	return m.currentStep
}

// CurrentStep returns the step the user is on.
func (m *Machine) CurrentStep() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentStep
}

// TotalSteps returns 5 for premium users and 4 otherwise.
func (m *Machine) TotalSteps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TotalSteps(m.premium)
}

// IsPremium reports the entitlement resolved at initialization.
func (m *Machine) IsPremium() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.premium
}

// SelectedValues returns a copy of the selection in the order values were picked.
func (m *Machine) SelectedValues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneIDs(m.selected)
}

// IsSelected reports whether id is part of the selection.
func (m *Machine) IsSelected(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return indexOf(m.selected, strings.TrimSpace(id)) >= 0
}

// PrioritizedValues returns a copy of the ranking, most important first.
func (m *Machine) PrioritizedValues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneIDs(m.prioritized)
}

// ReflectionResponses returns a copy of the reflections keyed by value id.
func (m *Machine) ReflectionResponses() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneReflections(m.reflections)
}

// Reflection returns the saved reflection for id.
func (m *Machine) Reflection(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.reflections[strings.TrimSpace(id)]
	return text, ok
}

// ReflectionCount returns the number of non-empty reflections.
func (m *Machine) ReflectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reflections)
}

// Snapshot returns the current state as a record without persisting it.
func (m *Machine) Snapshot() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(m.version)
}

// CanEnter reports whether the gate for step holds against current data.
func (m *Machine) CanEnter(step Step) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canEnterLocked(step)
}

func (m *Machine) canEnterLocked(step Step) bool {
	if step < StepIntroduction || int(step) > TotalSteps(m.premium) {
		return false
	}
	return m.policy.CanEnter(step, m.countsLocked(), m.premium)
}

// NextStep advances one step when the gate allows it.
func (m *Machine) NextStep() bool {
	m.mu.Lock()
	current := m.currentStep
	target := current + 1
	if !m.canEnterLocked(target) {
		m.mu.Unlock()
		m.logger.Debug("assessment: navigation blocked", zap.Int("step", int(current)), zap.Int("target", int(target)))
		m.bus.Emit(NavigationBlocked{Reason: ReasonRequirementNotMet, CurrentStep: current})
		return false
	}
	m.currentStep = target
	m.mu.Unlock()
	m.bus.Emit(StepChanged{Step: target, Direction: DirectionForward})
	return true
}

// PreviousStep retreats one step. Retreating is never gated.
func (m *Machine) PreviousStep() bool {
	m.mu.Lock()
	if m.currentStep <= StepIntroduction {
		m.mu.Unlock()
		return false
	}
	m.currentStep--
	step := m.currentStep
	m.mu.Unlock()
	m.bus.Emit(StepChanged{Step: step, Direction: DirectionBackward})
	return true
}

// GoToStep jumps to step. Out-of-range requests are ignored, forward jumps
// are gated like NextStep and backward jumps always succeed. It returns the
// step the machine is on afterwards.
func (m *Machine) GoToStep(step Step) Step {
	m.mu.Lock()
	current := m.currentStep
	if step < StepIntroduction || int(step) > TotalSteps(m.premium) || step == current {
		m.mu.Unlock()
		return current
	}
	if step > current && !m.canEnterLocked(step) {
		m.mu.Unlock()
		m.bus.Emit(NavigationBlocked{Reason: ReasonRequirementNotMet, CurrentStep: current, TargetStep: step})
		return current
	}
	m.currentStep = step
	m.mu.Unlock()
	direction := DirectionForward
	if step < current {
		direction = DirectionBackward
	}
	m.bus.Emit(StepChanged{Step: step, Direction: direction})
	return step
}

// ToggleValue flips membership of id and returns the new membership.
func (m *Machine) ToggleValue(id string) (bool, error) {
	return m.toggle(id, nil)
}

// SelectValue sets membership of id explicitly. Setting the current state is a no-op.
func (m *Machine) SelectValue(id string, selected bool) (bool, error) {
	return m.toggle(id, &selected)
}

func (m *Machine) toggle(id string, force *bool) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrEmptyValueID
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrClosed
	}
	idx := indexOf(m.selected, id)
	isSelected := idx >= 0
	want := !isSelected
	if force != nil {
		want = *force
	}
	if want == isSelected {
		m.mu.Unlock()
		return isSelected, nil
	}
	if want && m.catalog != nil && !m.catalog.Has(id) {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownValue, id)
	}
	events := make([]Event, 0, 2)
	if want {
		m.selected = append(m.selected, id)
	} else {
		m.selected = removeAt(m.selected, idx)
		if m.policy.Integrity != IntegrityPermissive {
			if pos := indexOf(m.prioritized, id); pos >= 0 {
				m.prioritized = removeAt(m.prioritized, pos)
				events = append(events, PrioritizationChanged{PrioritizedValues: cloneIDs(m.prioritized)})
			}
		}
	}
	events = append([]Event{ValueToggled{ValueID: id, IsSelected: want, Count: len(m.selected)}}, events...)
	record := m.stampLocked()
	m.mu.Unlock()

	m.emit(events...)
	m.persist.enqueue(record)
	return want, nil
}

// SetPrioritizedValues replaces the ranking wholesale. Ids that were never
// selected are handled according to the policy's integrity mode.
func (m *Machine) SetPrioritizedValues(ids []string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	next, err := m.filterPrioritizedLocked(ids)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.prioritized = next
	event := PrioritizationChanged{PrioritizedValues: cloneIDs(next)}
	record := m.stampLocked()
	m.mu.Unlock()

	m.bus.Emit(event)
	m.persist.enqueue(record)
	return nil
}

func (m *Machine) filterPrioritizedLocked(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if m.policy.Integrity == IntegrityPermissive {
			out = append(out, id)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if indexOf(m.selected, id) < 0 {
			if m.policy.Integrity == IntegrityReject {
				return nil, fmt.Errorf("%w: %s", ErrUnselectedValue, id)
			}
			m.logger.Debug("assessment: dropping unselected prioritized value", zap.String("value", id))
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// MoveValueUp swaps the value at index with its predecessor.
func (m *Machine) MoveValueUp(index int) bool {
	return m.move(index, -1, "up")
}

// MoveValueDown swaps the value at index with its successor.
func (m *Machine) MoveValueDown(index int) bool {
	return m.move(index, 1, "down")
}

func (m *Machine) move(index, delta int, direction string) bool {
	m.mu.Lock()
	n := len(m.prioritized)
	target := index + delta
	if m.closed || index < 0 || index >= n || target < 0 || target >= n {
		m.mu.Unlock()
		return false
	}
	m.prioritized[index], m.prioritized[target] = m.prioritized[target], m.prioritized[index]
	event := PrioritizationChanged{
		PrioritizedValues: cloneIDs(m.prioritized),
		MovedValueID:      m.prioritized[target],
		NewIndex:          target,
		Direction:         direction,
	}
	record := m.stampLocked()
	m.mu.Unlock()

	m.bus.Emit(event)
	m.persist.enqueue(record)
	return true
}

// SaveReflection upserts the trimmed reflection for valueID. Blank text removes it.
func (m *Machine) SaveReflection(valueID, text string) error {
	valueID = strings.TrimSpace(valueID)
	if valueID == "" {
		return ErrEmptyValueID
	}
	trimmed := strings.TrimSpace(text)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if trimmed == "" {
		if _, ok := m.reflections[valueID]; !ok {
			m.mu.Unlock()
			return nil
		}
		delete(m.reflections, valueID)
	} else {
		m.reflections[valueID] = trimmed
	}
	record := m.stampLocked()
	m.mu.Unlock()

	m.bus.Emit(ReflectionSaved{ValueID: valueID, TextLength: utf8.RuneCountInString(trimmed)})
	m.persist.enqueue(record)
	return nil
}

// Restart clears every collection in memory and in storage and returns to
// the first step. Pending writes are settled first; if that fails nothing is
// cleared. Writes queued after the settle are discarded so they cannot
// resurrect data.
func (m *Machine) Restart(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	if err := m.persist.flush(ctx); err != nil {
		m.logger.Warn("assessment: restart aborted, pending writes did not settle", zap.Error(err))
		m.bus.Emit(ErrorEvent{Context: ContextRestart, Err: err})
		return fmt.Errorf("assessment: restart: %w", err)
	}

	m.mu.Lock()
	previous := m.currentStep
	m.selected = nil
	m.prioritized = nil
	m.reflections = map[string]string{}
	m.currentStep = StepIntroduction
	m.stampLocked()
	m.mu.Unlock()

	m.persist.discard()
	// A write picked up between the settle and the discard finishes before ClearAll.
	settleErr := m.persist.flush(ctx)
	clearErr := m.storage.ClearAll(ctx)
	m.bus.Emit(AssessmentReset{})
	if previous != StepIntroduction {
		m.bus.Emit(StepChanged{Step: StepIntroduction, Direction: DirectionBackward})
	}
	if err := errors.Join(settleErr, clearErr); err != nil {
		m.logger.Warn("assessment: clear stored progress failed", zap.Error(err))
		m.bus.Emit(ErrorEvent{Context: ContextRestart, Err: err})
		return fmt.Errorf("assessment: restart: %w", err)
	}
	m.logger.Info("assessment: restarted")
	return nil
}

// RefreshEntitlement re-resolves premium access after an auth change. When
// the signed-in account is unchanged the step count follows and the current
// step is clamped into range. When it changed, progress is reloaded from the
// new account's storage and reconciled.
func (m *Machine) RefreshEntitlement(ctx context.Context) bool {
	premium, err := m.resolvePremium(ctx)
	if err != nil {
		m.logger.Warn("assessment: entitlement refresh failed", zap.Error(err))
		m.bus.Emit(ErrorEvent{Context: ContextInitialization, Err: err})
	}
	owner := ownerOf(ctx, m.identity)
	m.mu.Lock()
	if owner != m.owner {
		m.mu.Unlock()
		m.switchOwner(ctx, owner, premium)
		return premium
	}
	m.premium = premium
	var events []Event
	if total := Step(TotalSteps(premium)); m.currentStep > total {
		m.currentStep = total
		events = append(events, StepChanged{Step: total, Direction: DirectionBackward})
	}
	m.mu.Unlock()
	m.emit(events...)
	return premium
}

// switchOwner swaps in the progress stored for owner. Writes still queued for
// the previous account are dropped; one already in flight is refused by
// ownerGuard since the router now points at the new account.
func (m *Machine) switchOwner(ctx context.Context, owner string, premium bool) {
	m.persist.discard()
	if err := m.persist.flush(ctx); err != nil {
		m.logger.Warn("assessment: pending write did not settle before account switch", zap.Error(err))
	}
	loaded, loadErr := m.load(ctx)

	m.mu.Lock()
	previous := m.currentStep
	m.premium = premium
	m.owner = owner
	step := m.applyLoadedLocked(loaded, loadErr)
	counts := m.countsLocked()
	m.mu.Unlock()

	m.logger.Info("assessment: account changed, progress reloaded",
		zap.Bool("signed_in", owner != ""),
		zap.Bool("premium", premium),
		zap.Int("step", int(step)),
	)
	if loadErr != nil {
		m.logger.Warn("assessment: load progress failed, starting fresh", zap.Error(loadErr))
		m.bus.Emit(ErrorEvent{Context: ContextLoadProgress, Err: loadErr})
	} else {
		m.bus.Emit(ProgressLoaded{
			CurrentStep:       step,
			SelectedValues:    counts.Selected,
			PrioritizedValues: counts.Prioritized,
		})
	}
	if step != previous {
		direction := DirectionForward
		if step < previous {
			direction = DirectionBackward
		}
		m.bus.Emit(StepChanged{Step: step, Direction: direction})
	}
}

// Reconcile re-runs progress reconciliation against in-memory data.
func (m *Machine) Reconcile() Step {
	m.mu.Lock()
	current := m.currentStep
	step := m.policy.Reconcile(m.countsLocked(), m.premium)
	m.currentStep = step
	m.mu.Unlock()
	if step != current {
		direction := DirectionForward
		if step < current {
			direction = DirectionBackward
		}
		m.bus.Emit(StepChanged{Step: step, Direction: direction})
	}
	return step
}

// Flush waits until every queued persist has been attempted.
func (m *Machine) Flush(ctx context.Context) error {
	return m.persist.flush(ctx)
}

// Close flushes pending writes and stops the persister.
func (m *Machine) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.persist.close(ctx)
}

func (m *Machine) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ownerGuard refuses records captured for an account other than the one the
// storage router currently serves.
type ownerGuard struct {
	Storage
	identity Identity
}

func (g ownerGuard) SaveAssessment(ctx context.Context, record Record) error {
	if g.identity != nil && ownerOf(ctx, g.identity) != record.Owner {
		return ErrOwnerChanged
	}
	return g.Storage.SaveAssessment(ctx, record)
}

func (m *Machine) handleSaved(record Record) {
	m.bus.Emit(ProgressSaved{Version: record.Version})
}

func (m *Machine) handleSaveError(err error) {
	m.logger.Warn("assessment: save progress failed", zap.Error(err))
	m.bus.Emit(ErrorEvent{Context: ContextSaveProgress, Err: err})
}

func (m *Machine) emit(events ...Event) {
	for _, event := range events {
		m.bus.Emit(event)
	}
}

func (m *Machine) countsLocked() Counts {
	return Counts{
		Selected:    len(m.selected),
		Prioritized: len(m.prioritized),
		Reflections: len(m.reflections),
	}
}

// stampLocked bumps the version and returns the record to persist.
func (m *Machine) stampLocked() Record {
	version := uint64(m.clock().UnixNano())
	if version <= m.version {
		version = m.version + 1
	}
	m.version = version
	return m.recordLocked(version)
}

func (m *Machine) recordLocked(version uint64) Record {
	return Record{
		Version:             version,
		Writer:              m.writer,
		Owner:               m.owner,
		UpdatedAt:           m.clock().UTC(),
		Fields:              FieldAll,
		SelectedValues:      cloneIDs(m.selected),
		PrioritizedValues:   cloneIDs(m.prioritized),
		ReflectionResponses: cloneReflections(m.reflections),
	}
}
