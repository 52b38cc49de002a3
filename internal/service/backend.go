// Package service contains the backend orchestrator: the single
// authoritative state-transition API over users, contacts, groups, presence
// and sessions. Protocol adapters never mutate model state directly.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"retroim/internal/auth"
	"retroim/internal/domain"
	"retroim/internal/session"
)

// Token purposes minted by the backend.
const (
	TokenPurposeLogin        = "login"
	TokenPurposeChatTransfer = "sb/xfr"
	TokenPurposeChatInvite   = "sb/cal"
)

// Config tunes the background loops.
type Config struct {
	SyncInterval  time.Duration // persistence flush cadence
	SyncBatchSize int           // max dirty pairs flushed per cycle
	ReapInterval  time.Duration // idle-session sweep cadence
}

func (c *Config) applyDefaults() {
	if c.SyncInterval <= 0 {
		c.SyncInterval = time.Second
	}
	if c.SyncBatchSize <= 0 {
		c.SyncBatchSize = 100
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 10 * time.Second
	}
}

// PresenceMirror exports presence to an external side-store. Calls are best
// effort; the in-memory directory stays authoritative.
type PresenceMirror interface {
	Publish(ctx context.Context, user *domain.User) error
	Remove(ctx context.Context, uuid string) error
}

type dirtyEntry struct {
	user   *domain.User
	detail *domain.UserDetail
}

// Backend owns all mutable presence/roster state. A single mutex serializes
// every state transition, which is what keeps multi-step mutations (contact
// edits plus their reciprocal updates) atomic with respect to each other.
// Storage I/O happens outside the lock.
type Backend struct {
	log    *zap.Logger
	cache  *UserCache
	dir    *session.Directory
	tokens *auth.TokenService
	mirror PresenceMirror
	cfg    Config

	mu       sync.Mutex
	unsynced map[string]dirtyEntry
}

func NewBackend(log *zap.Logger, storage domain.Storage, cfg Config) *Backend {
	cfg.applyDefaults()
	return &Backend{
		log:      log,
		cache:    NewUserCache(storage),
		dir:      session.NewDirectory(),
		tokens:   auth.NewTokenService(),
		cfg:      cfg,
		unsynced: make(map[string]dirtyEntry),
	}
}

// SetPresenceMirror attaches an optional presence side-store.
func (b *Backend) SetPresenceMirror(m PresenceMirror) { b.mirror = m }

func (b *Backend) Cache() *UserCache             { return b.cache }
func (b *Backend) Directory() *session.Directory { return b.dir }
func (b *Backend) Tokens() *auth.TokenService    { return b.tokens }

// LoginBegin is phase one of the two-phase login: verify credentials and
// mint a handoff token. Returns "" on a credential mismatch; callers map
// that to a generic auth-fail response with no further detail.
func (b *Backend) LoginBegin(ctx context.Context, email, password string) (string, error) {
	uuid, err := b.cache.Login(ctx, email, password)
	if err != nil {
		return "", err
	}
	if uuid == "" {
		return "", nil
	}
	return b.tokens.Create(TokenPurposeLogin, uuid, auth.DefaultLifetime), nil
}

// LoginFinish redeems the handoff token, loads the user and detail, and
// registers the session. Any failure (expired or invalid token, email
// mismatch, unknown user) returns (nil, nil); adapters map that to an
// authentication failure, never to an internal error.
func (b *Backend) LoginFinish(ctx context.Context, sess *session.Session, email, token string) (*domain.User, error) {
	data, ok := b.tokens.Pop(TokenPurposeLogin, token)
	if !ok {
		return nil, nil
	}
	uuid, _ := data.(string)

	user, err := b.cache.Get(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if user == nil || !strings.EqualFold(user.Email, email) {
		return nil, nil
	}

	var detail *domain.UserDetail
	if user.Detail == nil {
		detail = b.pendingDetail(uuid)
		if detail == nil {
			detail, err = b.cache.GetDetail(ctx, uuid)
			if err != nil {
				return nil, err
			}
			if detail == nil {
				return nil, nil
			}
		}
	}

	b.mu.Lock()
	if user.Detail == nil {
		// an edit against this offline user may have gone dirty while the
		// storage load was in flight; its detail wins
		if pending := b.pendingDetailLocked(uuid); pending != nil {
			detail = pending
		}
		user.Detail = detail
	}
	sess.SetUser(user)
	b.dir.AddSession(sess)
	b.mu.Unlock()

	b.log.Info("session registered",
		zap.String("uuid", user.UUID),
		zap.String("email", user.Email),
		zap.String("session", sess.ID))
	return user, nil
}

// MeUpdateFields is a disjoint set of optional updates to the current
// user's live status and settings.
type MeUpdateFields struct {
	Name      *string
	Message   *string
	Media     *string
	Substatus *domain.Substatus
	GTC       *string
	BLP       *string
}

// MeUpdate merges the given fields into the session user's live state, then
// unconditionally recomputes contact visibility across the directory and
// re-notifies watchers. Correctness-first rather than minimal-diffing.
func (b *Backend) MeUpdate(sess *session.Session, fields MeUpdateFields) error {
	user := sess.User()
	if user == nil || user.Detail == nil {
		return domain.ErrServerError
	}

	b.mu.Lock()
	if fields.Name != nil {
		user.Status.Name = *fields.Name
	}
	if fields.Message != nil {
		user.Status.Message = *fields.Message
	}
	if fields.Media != nil {
		user.Status.Media = *fields.Media
	}
	if fields.Substatus != nil {
		user.Status.Substatus = *fields.Substatus
	}
	if fields.GTC != nil {
		user.Detail.Settings["GTC"] = *fields.GTC
	}
	if fields.BLP != nil {
		user.Detail.Settings["BLP"] = *fields.BLP
	}
	b.markDirtyLocked(user)
	b.mu.Unlock()

	b.broadcastPresence(user)
	b.publishMirror(user)
	return nil
}

// visibleStatusLocked computes the status observer sees for head: offline
// if the head is not logged in or blocks the observer, otherwise the head's
// true live status verbatim. Caller holds b.mu.
func (b *Backend) visibleStatusLocked(observer, head *domain.User) domain.Status {
	if head == nil || head.Detail == nil {
		return domain.Status{Substatus: domain.SubstatusOffline}
	}
	if b.blocksLocked(head, observer) {
		return domain.Status{Substatus: domain.SubstatusOffline}
	}
	return head.Status
}

// blocksLocked applies the BL/AL/BLP rule: explicit BL blocks, explicit AL
// allows, otherwise the head's block-list policy decides (default open).
func (b *Backend) blocksLocked(head, observer *domain.User) bool {
	if observer == nil {
		return true
	}
	if ctc, ok := head.Detail.Contacts[observer.UUID]; ok {
		if ctc.Lists.Has(domain.ListBL) {
			return true
		}
		if ctc.Lists.Has(domain.ListAL) {
			return false
		}
	}
	return head.Detail.BLP() == "BL"
}

type delivery struct {
	sess *session.Session
	ev   domain.Event
}

// broadcastPresence is the full-scan fan-out: refresh every live contact
// snapshot in the directory, then push a presence event to each session
// whose user has a contact entry for changed. O(live sessions) per change.
func (b *Backend) broadcastPresence(changed *domain.User) {
	var out []delivery

	b.mu.Lock()
	for _, s := range b.dir.All() {
		u := s.User()
		if u == nil || u.Detail == nil {
			continue
		}
		for _, ctc := range u.Detail.Contacts {
			ctc.Status = b.visibleStatusLocked(u, b.cache.Peek(ctc.UUID))
		}
		if u == changed {
			continue
		}
		ctc, ok := u.Detail.Contacts[changed.UUID]
		if !ok {
			continue
		}
		out = append(out, delivery{s, domain.PresenceEvent{
			UserUUID: changed.UUID,
			Email:    changed.Email,
			Status:   ctc.Status,
		}})
	}
	b.mu.Unlock()

	b.deliver(out)
}

func (b *Backend) deliver(out []delivery) {
	for _, d := range out {
		if err := d.sess.Send(d.ev); err != nil {
			b.log.Warn("event delivery failed",
				zap.String("session", d.sess.ID),
				zap.String("event", d.ev.EventType()),
				zap.Error(err))
		}
	}
}

// NotifyCall invites a contact into a chat. Every live session of the
// callee gets one invite with its own one-shot token, so multi-device users
// ring everywhere.
func (b *Backend) NotifyCall(ctx context.Context, callerUUID, calleeEmail, chatID string) error {
	caller := b.cache.Peek(callerUUID)
	if caller == nil || caller.Detail == nil {
		// callers are always live in-memory users; anything else is a bug
		return domain.ErrServerError
	}

	calleeUUID, err := b.cache.GetUUID(ctx, calleeEmail)
	if err != nil {
		return err
	}
	if calleeUUID == "" {
		return domain.ErrUserDoesNotExist
	}

	var out []delivery
	b.mu.Lock()
	if _, ok := caller.Detail.Contacts[calleeUUID]; !ok {
		b.mu.Unlock()
		return domain.ErrContactDoesNotExist
	}
	callee := b.cache.Peek(calleeUUID)
	sessions := b.dir.SessionsByUUID(calleeUUID)
	if len(sessions) == 0 || b.visibleStatusLocked(caller, callee).Substatus.IsOfflineish() {
		b.mu.Unlock()
		return domain.ErrContactNotOnline
	}
	for _, s := range sessions {
		token := b.tokens.Create(TokenPurposeChatInvite, s, auth.DefaultLifetime)
		b.dir.BindToken(token, s)
		out = append(out, delivery{s, domain.ChatInviteEvent{
			InviterUUID:  caller.UUID,
			InviterEmail: caller.Email,
			InviterName:  caller.Status.Name,
			ChatID:       chatID,
			Token:        token,
		}})
	}
	b.mu.Unlock()

	b.deliver(out)
	return nil
}

// ChatTransferToken mints a switchboard handoff token for the session, used
// when a notification connection spawns a chat on a separate connection.
func (b *Backend) ChatTransferToken(sess *session.Session) string {
	token := b.tokens.Create(TokenPurposeChatTransfer, sess, auth.DefaultLifetime)
	b.dir.BindToken(token, sess)
	return token
}

// RedeemSessionToken pops a handoff token and returns the session it was
// minted for, or nil when the token is invalid, expired, or mismatched.
func (b *Backend) RedeemSessionToken(purpose, token string) *session.Session {
	data, ok := b.tokens.Pop(purpose, token)
	if !ok {
		return nil
	}
	s, _ := data.(*session.Session)
	return s
}

// OnSessionClosed deregisters a session after its transport ends. When the
// last session of a user goes, the user transitions to offline: watchers
// are notified, the dirty pair is captured for persistence, and the detail
// is dropped so the next login reloads fresh state.
func (b *Backend) OnSessionClosed(sess *session.Session) {
	if chat := sess.Chat(); chat != nil {
		chat.OnLeave(sess)
	}

	user := sess.User()
	_ = sess.Close()
	if user == nil {
		return
	}

	removed, last := b.dir.RemoveSession(sess)
	if !removed || !last {
		return
	}

	b.mu.Lock()
	user.Status.Substatus = domain.SubstatusOffline
	b.markDirtyLocked(user)
	user.Detail = nil
	b.mu.Unlock()

	b.log.Info("user offline", zap.String("uuid", user.UUID), zap.String("email", user.Email))
	b.broadcastPresence(user)
	b.removeMirror(user.UUID)
}

// ForceLogoff closes every live session of a user after sending a forced
// logoff event. Returns the number of sessions closed.
func (b *Backend) ForceLogoff(uuid, reason string) int {
	sessions := b.dir.SessionsByUUID(uuid)
	for _, s := range sessions {
		if err := s.Send(domain.ForcedLogoffEvent{Reason: reason}); err != nil {
			b.log.Warn("forced logoff notice failed", zap.String("session", s.ID), zap.Error(err))
		}
		b.OnSessionClosed(s)
	}
	return len(sessions)
}

// pendingDetailLocked returns the detail held by an unflushed dirty entry
// for uuid, if any. Every read of a logged-out user's detail must prefer it
// over storage, or edges applied since the last flush get clobbered.
func (b *Backend) pendingDetailLocked(uuid string) *domain.UserDetail {
	if e, ok := b.unsynced[uuid]; ok {
		return e.detail
	}
	return nil
}

func (b *Backend) pendingDetail(uuid string) *domain.UserDetail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingDetailLocked(uuid)
}

func (b *Backend) markDirtyLocked(user *domain.User) {
	b.unsynced[user.UUID] = dirtyEntry{user: user, detail: user.Detail}
}

// markDirtyPairLocked records a pair whose detail is not attached to the
// head (reciprocal edits against an offline user).
func (b *Backend) markDirtyPairLocked(user *domain.User, detail *domain.UserDetail) {
	b.unsynced[user.UUID] = dirtyEntry{user: user, detail: detail}
}

// RunSyncLoop periodically flushes dirty pairs until ctx is cancelled, then
// performs one final flush.
func (b *Backend) RunSyncLoop(ctx context.Context) {
	t := time.NewTicker(b.cfg.SyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			b.FlushDirty(context.Background())
			return
		case <-t.C:
			b.FlushDirty(ctx)
		}
	}
}

// FlushDirty writes up to SyncBatchSize dirty pairs to storage. A failed
// batch is logged and dropped for this cycle; entries re-dirty on their
// next mutation.
func (b *Backend) FlushDirty(ctx context.Context) {
	b.mu.Lock()
	entries := make([]domain.BatchEntry, 0, b.cfg.SyncBatchSize)
	for uuid, e := range b.unsynced {
		if len(entries) >= b.cfg.SyncBatchSize {
			break
		}
		entries = append(entries, domain.BatchEntry{User: e.user, Detail: e.detail})
		delete(b.unsynced, uuid)
	}
	b.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	if err := b.cache.SaveBatch(ctx, entries); err != nil {
		b.log.Error("persistence batch failed",
			zap.Int("entries", len(entries)),
			zap.Error(err))
	}
}

// RunReaperLoop sweeps idle polling-style sessions until ctx is cancelled.
func (b *Backend) RunReaperLoop(ctx context.Context) {
	t := time.NewTicker(b.cfg.ReapInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.ReapIdle()
		}
	}
}

// ReapIdle closes sessions whose last contact exceeds their transport's
// configured timeout. Failures are logged and never halt the sweep.
func (b *Backend) ReapIdle() {
	now := time.Now()
	for _, s := range b.dir.All() {
		it, ok := s.Transport().(domain.IdleTransport)
		if !ok {
			continue
		}
		if now.Sub(it.LastContact()) <= it.IdleTimeout() {
			continue
		}
		b.log.Info("reaping idle session", zap.String("session", s.ID))
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("idle reap panicked", zap.String("session", s.ID), zap.Any("panic", r))
				}
			}()
			b.OnSessionClosed(s)
		}()
	}
}

// Stats is a point-in-time snapshot for the ops surface.
type Stats struct {
	OnlineUsers   int `json:"online_users"`
	LiveSessions  int `json:"live_sessions"`
	CachedHeads   int `json:"cached_heads"`
	PendingWrites int `json:"pending_writes"`
	LiveTokens    int `json:"live_tokens"`
}

func (b *Backend) Stats() Stats {
	users, sessions := b.dir.Counts()
	b.mu.Lock()
	pending := len(b.unsynced)
	b.mu.Unlock()
	return Stats{
		OnlineUsers:   users,
		LiveSessions:  sessions,
		CachedHeads:   b.cache.Size(),
		PendingWrites: pending,
		LiveTokens:    b.tokens.Live(),
	}
}

// SessionInfo describes one live session for the ops surface.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	UserUUID  string `json:"user_uuid"`
	Email     string `json:"email"`
	Substatus string `json:"substatus"`
	Dialect   int    `json:"dialect"`
}

func (b *Backend) SessionList() []SessionInfo {
	all := b.dir.All()
	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		u := s.User()
		if u == nil {
			continue
		}
		out = append(out, SessionInfo{
			SessionID: s.ID,
			UserUUID:  u.UUID,
			Email:     u.Email,
			Substatus: u.Status.Substatus.String(),
			Dialect:   s.Dialect(),
		})
	}
	return out
}

func (b *Backend) publishMirror(user *domain.User) {
	if b.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := b.mirror.Publish(ctx, user); err != nil {
		b.log.Warn("presence mirror publish failed", zap.String("uuid", user.UUID), zap.Error(err))
	}
}

func (b *Backend) removeMirror(uuid string) {
	if b.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := b.mirror.Remove(ctx, uuid); err != nil {
		b.log.Warn("presence mirror remove failed", zap.String("uuid", uuid), zap.Error(err))
	}
}
