package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/eventloom/ticketpay/internal/gateway"
	"github.com/eventloom/ticketpay/internal/observability"
)

// AuditLogger keeps a durable trail of settlement decisions. Security
// mismatches in particular must survive beyond process logs.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("settlement_audit"),
		logger: logger,
	}
}

type auditRecord struct {
	ID         uuid.UUID `bson:"_id"`
	Action     string    `bson:"action"`
	AttendeeID uuid.UUID `bson:"attendee_id"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data"`
}

func (a *AuditLogger) record(ctx context.Context, action string, attendeeID uuid.UUID, data bson.M) error {
	rec := auditRecord{
		ID:         uuid.New(),
		Action:     action,
		AttendeeID: attendeeID,
		Timestamp:  time.Now(),
		Data:       data,
	}
	_, err := a.coll.InsertOne(ctx, rec)
	if err != nil {
		a.logger.Error("failed to insert audit record", err)
		return err
	}
	return nil
}

func (a *AuditLogger) RecordSecurityMismatch(ctx context.Context, attendeeID uuid.UUID, reason string, v gateway.Verification) error {
	return a.record(ctx, "settlement.security_mismatch", attendeeID, bson.M{
		"reason":            reason,
		"pidx":              v.Pidx,
		"purchase_order_id": v.PurchaseOrderID,
		"total_amount":      v.TotalAmount,
		"transaction_id":    v.TransactionID,
	})
}

func (a *AuditLogger) RecordSettlement(ctx context.Context, attendeeID uuid.UUID, amount, platformFee int64) error {
	return a.record(ctx, "settlement.applied", attendeeID, bson.M{
		"amount":       amount,
		"platform_fee": platformFee,
	})
}
