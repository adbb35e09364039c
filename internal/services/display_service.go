package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"badgehub/internal/badgeid"
	"badgehub/internal/events"
	"badgehub/internal/fetch"
	"badgehub/internal/metrics"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/records"
	"badgehub/internal/retry"

	"go.uber.org/zap"
)

// Toggle applies action to a copy of list. Adding a badge already shown or
// removing one that is not shown leaves the list unchanged. Badges are
// matched on their canonical identifier.
func Toggle(list *models.ProfileDisplayList, badgeID, awardID string, action models.DisplayAction) (*models.ProfileDisplayList, bool) {
	next := list.Clone()
	if next == nil {
		next = &models.ProfileDisplayList{}
	}

	id := badgeid.Normalize(badgeID)
	idx := next.IndexOf(id)

	switch action {
	case models.DisplayAdd:
		if idx >= 0 {
			return next, false
		}
		next.Entries = append(next.Entries, models.DisplayEntry{BadgeID: id, AwardID: awardID})
	case models.DisplayRemove:
		if idx < 0 {
			return next, false
		}
		next.Entries = append(next.Entries[:idx], next.Entries[idx+1:]...)
	default:
		return next, false
	}
	return next, true
}

// userDisplay is the per-user slot of the state machine. mu serializes
// loads and toggles; state may be read without it.
type userDisplay struct {
	mu    sync.Mutex
	state atomic.Int32
	list  *models.ProfileDisplayList
}

func (u *userDisplay) set(s DisplayState) { u.state.Store(int32(s)) }
func (u *userDisplay) get() DisplayState  { return DisplayState(u.state.Load()) }

type displayService struct {
	scheduler *fetch.Scheduler
	keyring   *nostr.Keyring
	eventBus  events.EventBus
	config    *ResolverConfig
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	users map[string]*userDisplay

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDisplayService creates the profile display service. Close stops any
// confirmation still polling.
func NewDisplayService(scheduler *fetch.Scheduler, keyring *nostr.Keyring, eventBus events.EventBus, config *ResolverConfig, logger *zap.Logger) DisplayService {
	if config == nil {
		config = DefaultResolverConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &displayService{
		scheduler: scheduler,
		keyring:   keyring,
		eventBus:  eventBus,
		config:    config,
		logger:    logger,
		now:       time.Now,
		users:     make(map[string]*userDisplay),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *displayService) user(key string) *userDisplay {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[key]
	if !ok {
		u = &userDisplay{}
		s.users[key] = u
	}
	return u
}

// State returns the lifecycle state of user's list.
func (s *displayService) State(user string) DisplayState {
	s.mu.Lock()
	u, ok := s.users[user]
	s.mu.Unlock()
	if !ok {
		return DisplayUnloaded
	}
	return u.get()
}

// GetDisplayList returns the authoritative list of user. A locally
// published list is kept while relays still serve an older one.
func (s *displayService) GetDisplayList(ctx context.Context, user string) (*models.ProfileDisplayList, error) {
	u := s.user(user)
	u.mu.Lock()
	defer u.mu.Unlock()

	s.load(ctx, u, user)
	return u.list.Clone(), nil
}

// load reconciles the local list with the latest one on the relays.
// Callers hold u.mu.
func (s *displayService) load(ctx context.Context, u *userDisplay, user string) {
	if u.get() == DisplayUnloaded {
		u.set(DisplayLoading)
	}

	remote, res := s.fetchLatest(ctx, user)
	switch {
	case u.list == nil:
		u.list = remote
	case remote.RecordID != "" && remote.Newer(u.list):
		u.list = remote
	}

	if res.TimedOut && remote.RecordID == "" {
		s.logger.Warn("Display list lookup timed out without results",
			zap.String("user", user),
		)
	}
	u.set(DisplayLoaded)
}

func (s *displayService) displayFilter(user string) nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{nostr.KindProfileBadges},
		Authors: []string{user},
		Limit:   s.config.DisplayLimit,
	}.WithTag("d", nostr.ProfileBadgesIdentifier)
}

func (s *displayService) fetchLatest(ctx context.Context, user string) (*models.ProfileDisplayList, *fetch.Result) {
	res := s.scheduler.FetchLabeled(ctx, "display", s.displayFilter(user), s.config.DisplayBudget)

	var latest *models.ProfileDisplayList
	for i := range res.Events {
		e := &res.Events[i]
		if e.PubKey != user || !records.IsDisplayList(e) {
			continue
		}
		list, err := records.DecodeDisplayList(e)
		if err != nil {
			continue
		}
		if list.Newer(latest) {
			latest = list
		}
	}
	if latest == nil {
		latest = &models.ProfileDisplayList{Owner: user, Entries: []models.DisplayEntry{}}
	}
	return latest, res
}

// ToggleDisplay adds or removes a badge on user's list and publishes the
// complete new list. Toggles for the same user run one at a time.
func (s *displayService) ToggleDisplay(ctx context.Context, user, badgeID, awardID string, action models.DisplayAction) (*ToggleResult, error) {
	if !action.Valid() {
		return nil, NewValidationError("Action must be add or remove", nil).WithDetail("action", string(action))
	}
	if _, ok := badgeid.Parse(badgeID); !ok {
		return nil, InvalidIdentifierError(badgeID)
	}
	if action == models.DisplayAdd && awardID == "" {
		return nil, NewValidationError("An award id is required to display a badge", nil)
	}

	signer, ok := s.keyring.Lookup(user)
	if !ok {
		return nil, SignerUnavailableError(user)
	}

	u := s.user(user)
	list, event, err := s.apply(ctx, u, user, signer, badgeID, awardID, action)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return &ToggleResult{List: list}, nil
	}

	s.emit(ctx, events.NewDisplayPublishedEvent(user, event.ID, badgeid.Normalize(badgeID), string(action), len(list.Entries)))

	confirmed := make(chan bool, 1)
	s.wg.Add(1)
	go s.confirm(user, event.ID, confirmed)

	return &ToggleResult{List: list, Changed: true, Confirmed: confirmed}, nil
}

// apply runs the critical section of a toggle. The returned event is nil
// when nothing changed.
func (s *displayService) apply(ctx context.Context, u *userDisplay, user string, signer nostr.Signer, badgeID, awardID string, action models.DisplayAction) (*models.ProfileDisplayList, *nostr.Event, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.get() == DisplayUnloaded || u.list == nil {
		s.load(ctx, u, user)
	}
	u.set(DisplayUpdating)
	defer u.set(DisplayLoaded)

	next, changed := Toggle(u.list, badgeID, awardID, action)
	if !changed {
		return u.list.Clone(), nil, nil
	}

	createdAt := nextTimestamp(s.now(), u.list.CreatedAt)
	event, err := signer.Sign(records.DisplayListTemplate(next.Entries, createdAt))
	if err != nil {
		return nil, nil, NewInternalError("Failed to sign display list", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()
	if err := s.scheduler.Source().Publish(pubCtx, *event); err != nil {
		metrics.DisplayPublishesTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("Display list publish rejected",
			zap.String("user", user),
			zap.String("record_id", event.ID),
			zap.Error(err),
		)
		return nil, nil, PublishRejectedError(event.Kind, err)
	}
	metrics.DisplayPublishesTotal.WithLabelValues("accepted").Inc()

	next.Owner = user
	next.RecordID = event.ID
	next.CreatedAt = event.CreatedAt
	u.list = next

	s.logger.Info("Display list published",
		zap.String("user", user),
		zap.String("record_id", event.ID),
		zap.String("action", string(action)),
		zap.Int("entries", len(next.Entries)),
	)
	return next.Clone(), event, nil
}

// confirm polls the relays until the published list is served back.
func (s *displayService) confirm(user, recordID string, done chan<- bool) {
	defer s.wg.Done()

	filter := s.displayFilter(user)
	ok := retry.Poll(s.ctx, s.config.ConfirmPolicy, func(ctx context.Context) (bool, error) {
		res := s.scheduler.FetchLabeled(ctx, "confirm", filter, s.config.ConfirmBudget)
		for _, e := range res.Events {
			if e.ID == recordID {
				return true, nil
			}
		}
		return false, nil
	})

	if ok {
		metrics.DisplayConfirmationsTotal.WithLabelValues("confirmed").Inc()
		s.emit(s.ctx, events.NewDisplayConfirmedEvent(user, recordID))
	} else {
		metrics.DisplayConfirmationsTotal.WithLabelValues("unconfirmed").Inc()
		s.logger.Warn("Published display list not yet visible on relays",
			zap.String("user", user),
			zap.String("record_id", recordID),
		)
		s.emit(context.WithoutCancel(s.ctx), events.NewDisplayUnconfirmedEvent(user, recordID))
	}
	done <- ok
}

func (s *displayService) emit(ctx context.Context, event events.Event) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish display event",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}

// Close stops confirmation polling and waits for it to finish.
func (s *displayService) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
