package gridkit

import (
	"context"
	"io"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/transfer"
	"github.com/google/uuid"
)

type Metadata = api.Metadata
type Agreement = api.Agreement
type Invoice = api.Invoice
type DebitNote = api.DebitNote
type ChunkStream = transfer.ChunkStream

type Client interface {

	// Probe the peer node.
	Ping(ctx context.Context, message string) (string, error)

	// Fetch the metadata of a shared resource.
	GetMetadata(ctx context.Context, url string) (*Metadata, error)

	// Open a shared resource as an ordered chunk stream.
	Open(ctx context.Context, url string) (*ChunkStream, error)

	// Download a shared resource into w.
	Download(ctx context.Context, url string, w io.Writer) error

	// Upload r to an upload target on the peer.
	Upload(ctx context.Context, url string, r io.Reader) error

	// Deliver an issued invoice to the peer.
	SendInvoice(ctx context.Context, invoice *Invoice) error

	// Tell the peer its invoice was accepted.
	AcceptInvoice(ctx context.Context, invoiceID, totalAmountAccepted string) error

	// Deliver an issued debit note to the peer.
	SendDebitNote(ctx context.Context, debitNote *DebitNote) error

	// Tell the peer its debit note was accepted.
	AcceptDebitNote(ctx context.Context, debitNoteID, totalAmountAccepted string) error
}

// NewClient creates a client for one peer node on the given bus.
func NewClient(b *bus.Bus, node uuid.UUID) Client {
	return &nodeClient{
		bus:      b,
		node:     node,
		provider: transfer.NewProvider(b, nil),
	}
}

type nodeClient struct {
	bus      *bus.Bus
	node     uuid.UUID
	provider *transfer.Provider
}

func (c *nodeClient) Ping(ctx context.Context, message string) (string, error) {
	endpoint := c.bus.Endpoint(c.node, api.PingAddress)
	reply, err := bus.Call[*api.Ping](ctx, endpoint, &api.Ping{Message: message})
	if err != nil {
		return "", err
	}
	return reply.Message, nil
}

func (c *nodeClient) GetMetadata(ctx context.Context, url string) (*Metadata, error) {
	u, err := transfer.ParseURL(url)
	if err != nil {
		return nil, err
	}
	endpoint := c.bus.Endpoint(u.Node, api.TransferAddress(u.Token))
	return bus.Call[*api.Metadata](ctx, endpoint, &api.GetMetadata{})
}

func (c *nodeClient) Open(ctx context.Context, url string) (*ChunkStream, error) {
	return c.provider.Open(ctx, url)
}

func (c *nodeClient) Download(ctx context.Context, url string, w io.Writer) error {
	return c.provider.Download(ctx, url, w)
}

func (c *nodeClient) Upload(ctx context.Context, url string, r io.Reader) error {
	return c.provider.Upload(ctx, url, r)
}

func (c *nodeClient) SendInvoice(ctx context.Context, invoice *Invoice) error {
	endpoint := c.bus.Endpoint(c.node, api.PaymentAddress)
	_, err := bus.Call[*api.Ack](ctx, endpoint, &api.SendInvoice{Invoice: invoice})
	return err
}

func (c *nodeClient) AcceptInvoice(ctx context.Context, invoiceID, totalAmountAccepted string) error {
	endpoint := c.bus.Endpoint(c.node, api.PaymentAddress)
	_, err := bus.Call[*api.Ack](ctx, endpoint, &api.AcceptInvoice{
		InvoiceID:           invoiceID,
		TotalAmountAccepted: totalAmountAccepted,
	})
	return err
}

func (c *nodeClient) SendDebitNote(ctx context.Context, debitNote *DebitNote) error {
	endpoint := c.bus.Endpoint(c.node, api.PaymentAddress)
	_, err := bus.Call[*api.Ack](ctx, endpoint, &api.SendDebitNote{DebitNote: debitNote})
	return err
}

func (c *nodeClient) AcceptDebitNote(ctx context.Context, debitNoteID, totalAmountAccepted string) error {
	endpoint := c.bus.Endpoint(c.node, api.PaymentAddress)
	_, err := bus.Call[*api.Ack](ctx, endpoint, &api.AcceptDebitNote{
		DebitNoteID:         debitNoteID,
		TotalAmountAccepted: totalAmountAccepted,
	})
	return err
}
