package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewEvent validates the price/isFree pairing at write time. A free event
// must have a zero price and a paid event a positive one; the two fields
// are never allowed to disagree.
func NewEvent(organizerID uuid.UUID, title string, price int64, isFree bool, capacity *int) (Event, error) {
	if title == "" {
		return Event{}, ErrInvalidInput
	}
	if price < 0 {
		return Event{}, ErrInvalidPrice
	}
	if isFree != (price == 0) {
		return Event{}, ErrInvalidPrice
	}
	if capacity != nil && *capacity <= 0 {
		return Event{}, ErrInvalidInput
	}
	return Event{
		ID:          uuid.New(),
		OrganizerID: organizerID,
		Title:       title,
		Price:       price,
		IsFree:      isFree,
		Capacity:    capacity,
		Status:      EventDraft,
		CreatedAt:   time.Now(),
	}, nil
}
