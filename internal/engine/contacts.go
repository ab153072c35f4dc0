package engine

import (
	"context"

	"github.com/google/uuid"

	"paperback-server/internal/message"
	"paperback-server/internal/model"
	"paperback-server/internal/store"
)

// ListFriends pages through the caller's contacts, newest first, resolved to
// their display names.
func (e *Engine) ListFriends(ctx context.Context, user *model.User, page store.Page) (*ContactListResult, error) {
	page = store.ContactPaging.Clamp(page)
	contacts, err := e.store.Contacts.ByOwner(ctx, user.ID, page)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}

	out := make([]*UserView, 0, len(contacts))
	for _, c := range contacts {
		u, err := e.store.Users.Get(ctx, c.ContactID)
		if err != nil {
			// A purged account leaves a dangling edge; skip it.
			e.log.WithField("contact", c.ContactID).Debug("contact user missing")
			continue
		}
		out = append(out, &UserView{ObjectID: u.ID, DisplayName: u.DisplayName})
	}
	return &ContactListResult{Code: message.ContactList, Contacts: out}, nil
}

// DeleteFriend removes the caller's edge to the given user. Only the
// caller's direction is removed; the other user keeps theirs.
func (e *Engine) DeleteFriend(ctx context.Context, user *model.User, contactUserID uuid.UUID) (*ContactDeletedResult, error) {
	existed, err := e.store.Contacts.Delete(ctx, user.ID, contactUserID)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	if !existed {
		return nil, message.NewError(message.ErrContactNotFound)
	}
	return &ContactDeletedResult{Code: message.ContactDeleted}, nil
}

// CheckNameFree reports whether a display name is still unclaimed.
func (e *Engine) CheckNameFree(ctx context.Context, displayName string) (*AvailabilityResult, error) {
	if displayName == "" {
		return nil, message.NewError(message.ErrInvalidParameter)
	}
	n, err := e.store.Users.CountByDisplayName(ctx, displayName)
	if err != nil {
		return nil, message.WrapError(message.ErrUnknown, err)
	}
	return &AvailabilityResult{Code: message.Availability, Available: n == 0}, nil
}
