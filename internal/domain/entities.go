package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

type User struct {
	ID       uuid.UUID
	Username string
	Email    string
	Role     Role
	// Balance is in minor units (paisa). Mutated only through additive
	// ledger operations, never overwritten.
	Balance int64
}

type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventCancelled EventStatus = "CANCELLED"
)

type Event struct {
	ID          uuid.UUID
	OrganizerID uuid.UUID
	Title       string
	Price       int64 // minor units per ticket
	IsFree      bool
	Capacity    *int
	Status      EventStatus
	CreatedAt   time.Time
}

type AttendeeStatus string

const (
	AttendeePending    AttendeeStatus = "PENDING"
	AttendeeRegistered AttendeeStatus = "REGISTERED"
	AttendeeWaitlist   AttendeeStatus = "WAITLIST"
	AttendeeCancelled  AttendeeStatus = "CANCELLED"
	AttendeeAttended   AttendeeStatus = "ATTENDED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Attendee is one user's ticket for one event, unique per (EventID, UserID).
// The row doubles as the payment order: its ID is the purchase order id sent
// to the gateway, and Pidx holds the gateway session once a checkout starts.
type Attendee struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	UserID        uuid.UUID
	Status        AttendeeStatus
	PaymentStatus PaymentStatus
	TicketType    string
	TicketCount   int
	PaymentAmount int64 // total charged, minor units
	PlatformFee   int64 // commission portion, minor units
	Pidx          *string
	TransactionID *string
	RegisteredAt  time.Time
}

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "PENDING"
	PayoutPaid     PayoutStatus = "PAID"
	PayoutRejected PayoutStatus = "REJECTED"
)

type Payout struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Amount      int64 // minor units, escrow-debited at request time
	Destination string
	Status      PayoutStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
