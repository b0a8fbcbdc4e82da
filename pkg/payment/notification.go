package payment

import (
	"context"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/messaging"
	"github.com/google/uuid"
)

// Notification is a routed announcement of a document status change. Each
// notification names the broker route it should be delivered on.
type Notification interface {
	api.Message
	GetRoute() messaging.Route
}

// Notifier delivers notifications to out-of-band subscribers (dashboards,
// accounting exports). Implementations publish on the route the
// notification names; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// InvoiceNotification announces an invoice status change to out-of-band
// subscribers (dashboards, accounting exports). Delivery runs over the
// message broker, not the rpc bus.
type InvoiceNotification struct {
	RecipientID uuid.UUID          `json:"recipient_id"`
	Invoice     *api.Invoice       `json:"invoice"`
	Status      api.DocumentStatus `json:"status"`
}

func (obj *InvoiceNotification) GetDiscriminator() string {
	return "gridkit://api/v1/invoice_notification"
}

func (obj *InvoiceNotification) GetRoute() messaging.Route {
	return GetInvoiceNotificationRoute(obj.RecipientID)
}

func GetInvoiceNotificationRoute(recipientID uuid.UUID) messaging.Route {
	inboxID := uuid.NewSHA1(recipientID, []byte("invoices"))
	return messaging.NewInboxRoute("gridkit", "invoice_notification", &inboxID)
}

// DebitNoteNotification announces a debit note status change.
type DebitNoteNotification struct {
	RecipientID uuid.UUID          `json:"recipient_id"`
	DebitNote   *api.DebitNote     `json:"debit_note"`
	Status      api.DocumentStatus `json:"status"`
}

func (obj *DebitNoteNotification) GetDiscriminator() string {
	return "gridkit://api/v1/debit_note_notification"
}

func (obj *DebitNoteNotification) GetRoute() messaging.Route {
	return GetDebitNoteNotificationRoute(obj.RecipientID)
}

func GetDebitNoteNotificationRoute(recipientID uuid.UUID) messaging.Route {
	inboxID := uuid.NewSHA1(recipientID, []byte("debit_notes"))
	return messaging.NewInboxRoute("gridkit", "debit_note_notification", &inboxID)
}
