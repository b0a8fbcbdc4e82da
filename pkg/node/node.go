package node

import (
	"context"
	"fmt"
	"time"

	"github.com/fgrzl/gridkit/pkg/auth/jwtkit"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/market"
	"github.com/fgrzl/gridkit/pkg/payment"
	"github.com/fgrzl/gridkit/pkg/storage"
	"github.com/fgrzl/gridkit/pkg/transfer"
	"github.com/fgrzl/gridkit/pkg/transport/wskit"
	"github.com/fgrzl/gridkit/pkg/web"
	"github.com/fgrzl/mux"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of link tokens minted for nodes that were
// not handed one.
const DefaultTokenTTL = 24 * time.Hour

// Options configures one grid participant.
type Options struct {
	// NodeID is generated when left zero.
	NodeID uuid.UUID

	// Secret signs and validates bearer tokens on the HTTP surface.
	Secret []byte

	// Directory resolves peer node ids to websocket addresses. A nil
	// directory yields a node that serves but never dials.
	Directory wskit.Directory

	// Token authenticates outbound links. When empty, the node mints its
	// own wildcard-scoped token from Secret.
	Token string

	// StoreFactory provides the document store backing market and payment.
	StoreFactory storage.StoreFactory

	// Notifier is optional; enables out-of-band document notifications.
	Notifier payment.Notifier

	// Transfer tunes chunk size and prefetch window.
	Transfer *transfer.Options
}

// Node bundles everything one grid participant runs: identity, bus, document
// store, marketplace services, transfer provider, and the HTTP surface.
type Node struct {
	bus      *bus.Bus
	store    storage.Store
	market   *market.Service
	payment  *payment.Service
	provider *transfer.Provider
	router   *mux.Router
}

func New(ctx context.Context, options *Options) (*Node, error) {
	if options == nil || options.StoreFactory == nil {
		return nil, fmt.Errorf("options with a store factory are required")
	}
	if len(options.Secret) == 0 {
		return nil, fmt.Errorf("a signing secret is required")
	}

	id := options.NodeID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var resolver bus.Resolver
	if options.Directory != nil {
		token := options.Token
		if token == "" {
			var signer jwtkit.Signer = &jwtkit.HMAC256Signer{Secret: options.Secret}
			minted, err := signer.CreateToken(jwtkit.NewNodeClaims(id.String()), DefaultTokenTTL)
			if err != nil {
				return nil, fmt.Errorf("mint link token: %w", err)
			}
			token = minted
		} else {
			// A token that does not verify against the mesh secret would
			// fail on the first dial anyway; reject it up front.
			validator := &jwtkit.HMAC256Validator{Secret: options.Secret}
			if _, err := validator.Validate(token); err != nil {
				return nil, fmt.Errorf("link token: %w", err)
			}
		}
		resolver = wskit.NewResolver(options.Directory, token)
	}
	b := bus.New(id, resolver)

	store, err := options.StoreFactory.NewStore(ctx, id.String())
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	marketService, err := market.NewService(b, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	paymentService, err := payment.NewService(b, store, options.Notifier)
	if err != nil {
		marketService.Close()
		store.Close()
		return nil, err
	}

	router, err := web.NewRouter(&web.Options{
		Secret:  options.Secret,
		Bus:     b,
		Market:  marketService,
		Payment: paymentService,
	})
	if err != nil {
		paymentService.Close()
		marketService.Close()
		store.Close()
		return nil, err
	}

	return &Node{
		bus:      b,
		store:    store,
		market:   marketService,
		payment:  paymentService,
		provider: transfer.NewProvider(b, options.Transfer),
		router:   router,
	}, nil
}

func (n *Node) ID() uuid.UUID {
	return n.bus.NodeID()
}

func (n *Node) Bus() *bus.Bus {
	return n.bus
}

func (n *Node) Store() storage.Store {
	return n.store
}

func (n *Node) Market() *market.Service {
	return n.market
}

func (n *Node) Payment() *payment.Service {
	return n.payment
}

func (n *Node) Transfer() *transfer.Provider {
	return n.provider
}

// Router is the HTTP surface to serve: healthz, /rpc, market and payment
// routes.
func (n *Node) Router() *mux.Router {
	return n.router
}

func (n *Node) Close() {
	n.payment.Close()
	n.market.Close()
	n.store.Close()
}
