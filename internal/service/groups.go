package service

import (
	"strconv"

	"retroim/internal/domain"
	"retroim/internal/session"
)

// GroupAdd creates a group for the session's user. The new id is the
// smallest positive integer not already in use, encoded decimal; "0" stays
// reserved for the implicit default group.
func (b *Backend) GroupAdd(sess *session.Session, name string) (*domain.Group, error) {
	user := sess.User()
	if user == nil || user.Detail == nil {
		return nil, domain.ErrServerError
	}
	if len(name) > domain.MaxGroupNameLength {
		return nil, domain.ErrGroupNameTooLong
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := ""
	for i := 1; ; i++ {
		id = strconv.Itoa(i)
		if _, used := user.Detail.Groups[id]; !used {
			break
		}
	}
	g := &domain.Group{ID: id, Name: name}
	user.Detail.Groups[id] = g
	b.markDirtyLocked(user)
	return g, nil
}

// GroupRemove deletes a group and scrubs its id from every contact's group
// set, so no orphan references survive.
func (b *Backend) GroupRemove(sess *session.Session, groupID string) error {
	user := sess.User()
	if user == nil || user.Detail == nil {
		return domain.ErrServerError
	}
	if groupID == domain.DefaultGroupID {
		return domain.ErrCannotRemoveSpecialGroup
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := user.Detail.Groups[groupID]; !ok {
		return domain.ErrGroupDoesNotExist
	}
	delete(user.Detail.Groups, groupID)
	for _, ctc := range user.Detail.Contacts {
		delete(ctc.Groups, groupID)
	}
	b.markDirtyLocked(user)
	return nil
}

// GroupEdit renames a group and/or toggles its favorite flag.
func (b *Backend) GroupEdit(sess *session.Session, groupID string, newName *string, isFavorite *bool) error {
	user := sess.User()
	if user == nil || user.Detail == nil {
		return domain.ErrServerError
	}
	if newName != nil && len(*newName) > domain.MaxGroupNameLength {
		return domain.ErrGroupNameTooLong
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	g, ok := user.Detail.Groups[groupID]
	if !ok {
		return domain.ErrGroupDoesNotExist
	}
	if newName != nil {
		g.Name = *newName
	}
	if isFavorite != nil {
		g.IsFavorite = *isFavorite
	}
	b.markDirtyLocked(user)
	return nil
}

// GroupContactAdd puts a contact into a group. Adding to the default group
// "0" is a no-op, not an error: membership there is implicit.
func (b *Backend) GroupContactAdd(sess *session.Session, groupID, contactUUID string) error {
	user := sess.User()
	if user == nil || user.Detail == nil {
		return domain.ErrServerError
	}
	if groupID == domain.DefaultGroupID {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := user.Detail.Groups[groupID]; !ok {
		return domain.ErrGroupDoesNotExist
	}
	ctc, ok := user.Detail.Contacts[contactUUID]
	if !ok {
		return domain.ErrContactDoesNotExist
	}
	if _, ok := ctc.Groups[groupID]; ok {
		return domain.ErrContactAlreadyOnList
	}
	ctc.Groups[groupID] = struct{}{}
	b.markDirtyLocked(user)
	return nil
}

// GroupContactRemove takes a contact out of a group. "0" is accepted as a
// pseudo-group meaning "no explicit group": with no explicit memberships
// there is nothing to remove and the call fails ContactNotOnList; with
// explicit memberships it succeeds as a no-op.
func (b *Backend) GroupContactRemove(sess *session.Session, groupID, contactUUID string) error {
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
	if groupID == domain.DefaultGroupID {
		if len(ctc.Groups) == 0 {
			return domain.ErrContactNotOnList
		}
		return nil
	}
	if _, ok := user.Detail.Groups[groupID]; !ok {
		return domain.ErrGroupDoesNotExist
	}
	if _, ok := ctc.Groups[groupID]; !ok {
		return domain.ErrContactNotOnList
	}
	delete(ctc.Groups, groupID)
	b.markDirtyLocked(user)
	return nil
}
