package service

import (
	"context"

	"go.uber.org/zap"

	"retroim/internal/domain"
	"retroim/internal/session"
)

// ContactAdd puts the target user on one of the session user's lists.
// Adding to FL also writes the reciprocal RL edge on the target (loading
// the target's detail from storage if they are offline) and notifies their
// live sessions of the reverse add. Every successful add recomputes
// visibility and echoes the contact's presence to the acting session.
func (b *Backend) ContactAdd(ctx context.Context, sess *session.Session, contactUUID string, lst domain.Lst, name string) (*domain.Contact, *domain.User, error) {
	user := sess.User()
	if user == nil || user.Detail == nil {
		return nil, nil, domain.ErrServerError
	}

	head, err := b.cache.Get(ctx, contactUUID)
	if err != nil {
		return nil, nil, err
	}
	if head == nil {
		return nil, nil, domain.ErrUserDoesNotExist
	}

	// the RL side needs the head's detail; resolve it out-of-band when the
	// head has no live session, so reciprocity holds on every path. An
	// unflushed dirty detail takes precedence over storage.
	var offlineDetail *domain.UserDetail
	if lst.Has(domain.ListFL) && head.Detail == nil {
		offlineDetail = b.pendingDetail(head.UUID)
		if offlineDetail == nil {
			offlineDetail, err = b.cache.GetDetail(ctx, head.UUID)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	b.mu.Lock()
	ctc := addToListLocked(user.Detail, head.UUID, lst, name)
	b.markDirtyLocked(user)

	reverseAdded := false
	if lst.Has(domain.ListFL) {
		headDetail := head.Detail
		if headDetail == nil {
			if pending := b.pendingDetailLocked(head.UUID); pending != nil {
				headDetail = pending
			} else {
				headDetail = offlineDetail
			}
		}
		if headDetail != nil {
			addToListLocked(headDetail, user.UUID, domain.ListRL, user.Status.Name)
			b.markDirtyPairLocked(head, headDetail)
			reverseAdded = true
		} else {
			b.log.Error("reciprocal RL edge dropped: head detail unavailable",
				zap.String("user", user.UUID), zap.String("head", head.UUID))
		}
	}
	b.mu.Unlock()

	if reverseAdded {
		ev := domain.ReverseAddEvent{
			UserUUID: user.UUID,
			Email:    user.Email,
			Name:     user.Status.Name,
		}
		for _, s := range b.dir.SessionsByUUID(head.UUID) {
			if err := s.Send(ev); err != nil {
				b.log.Warn("reverse-add notice failed", zap.String("session", s.ID), zap.Error(err))
			}
		}
	}

	b.broadcastPresence(user)

	b.mu.Lock()
	ev := domain.PresenceEvent{UserUUID: head.UUID, Email: head.Email, Status: ctc.Status}
	b.mu.Unlock()
	if err := sess.Send(ev); err != nil {
		b.log.Warn("contact presence echo failed", zap.String("session", sess.ID), zap.Error(err))
	}

	return ctc, head, nil
}

// ContactEdit updates contact-local fields.
func (b *Backend) ContactEdit(sess *session.Session, contactUUID string, isMessengerUser *bool) error {
	user := sess.User()
	if user == nil || user.Detail == nil {
		return domain.ErrServerError
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ctc, ok := user.Detail.Contacts[contactUUID]
	if !ok {
		return domain.ErrContactDoesNotExist
	}
	if isMessengerUser != nil {
		ctc.IsMessengerUser = *isMessengerUser
	}
	b.markDirtyLocked(user)
	return nil
}

// ContactRemove clears a list bit on a contact. Removing FL symmetrically
// removes the matching RL edge on the target. RL itself is never a valid
// target here, only FL removal may take it away, so an RL-targeting call
// is an invariant violation.
func (b *Backend) ContactRemove(ctx context.Context, sess *session.Session, contactUUID string, lst domain.Lst) error {
	if lst.Has(domain.ListRL) {
		return domain.ErrServerError
	}
	user := sess.User()
	if user == nil || user.Detail == nil {
		return domain.ErrServerError
	}

	// resolve the head and, for FL removal against an offline head, its
	// detail, before taking the state lock
	var head *domain.User
	var offlineDetail *domain.UserDetail
	if lst.Has(domain.ListFL) {
		var err error
		head, err = b.cache.Get(ctx, contactUUID)
		if err != nil {
			return err
		}
		if head != nil && head.Detail == nil {
			offlineDetail = b.pendingDetail(head.UUID)
			if offlineDetail == nil {
				offlineDetail, err = b.cache.GetDetail(ctx, head.UUID)
				if err != nil {
					return err
				}
			}
		}
	}

	b.mu.Lock()
	if _, ok := user.Detail.Contacts[contactUUID]; !ok {
		b.mu.Unlock()
		return domain.ErrContactDoesNotExist
	}
	removeFromListLocked(user.Detail, contactUUID, lst)
	b.markDirtyLocked(user)

	if lst.Has(domain.ListFL) && head != nil {
		headDetail := head.Detail
		if headDetail == nil {
			if pending := b.pendingDetailLocked(head.UUID); pending != nil {
				headDetail = pending
			} else {
				headDetail = offlineDetail
			}
		}
		if headDetail != nil {
			removeFromListLocked(headDetail, user.UUID, domain.ListRL)
			b.markDirtyPairLocked(head, headDetail)
		}
	}
	b.mu.Unlock()

	b.broadcastPresence(user)
	return nil
}

// addToListLocked gets or creates the contact entry for headUUID and sets
// the given list bits. Caller holds b.mu.
func addToListLocked(detail *domain.UserDetail, headUUID string, lst domain.Lst, name string) *domain.Contact {
	ctc, ok := detail.Contacts[headUUID]
	if !ok {
		ctc = domain.NewContact(headUUID, name)
		detail.Contacts[headUUID] = ctc
	}
	ctc.Lists |= lst
	if ctc.Name == "" && name != "" {
		ctc.Name = name
	}
	return ctc
}

// removeFromListLocked clears list bits and deletes the entry when no bits
// remain: a contact with an empty list bitset must not exist.
func removeFromListLocked(detail *domain.UserDetail, headUUID string, lst domain.Lst) {
	ctc, ok := detail.Contacts[headUUID]
	if !ok {
		return
	}
	ctc.Lists &^= lst
	if ctc.Lists == 0 {
		delete(detail.Contacts, headUUID)
	}
}
