package web

import (
	"fmt"

	"github.com/fgrzl/claims/jwtkit"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/fgrzl/gridkit/pkg/market"
	"github.com/fgrzl/gridkit/pkg/payment"
	"github.com/fgrzl/gridkit/pkg/transport/wskit"
	"github.com/fgrzl/mux"
)

// Options configures the node's HTTP surface.
type Options struct {
	// Secret signs and validates bearer tokens.
	Secret []byte

	Bus     *bus.Bus
	Market  *market.Service
	Payment *payment.Service
}

// NewRouter assembles the authenticated router: healthz, the /rpc websocket
// endpoint, and the market and payment routes.
func NewRouter(options *Options) (*mux.Router, error) {
	if options == nil || options.Bus == nil {
		return nil, fmt.Errorf("options with a bus are required")
	}
	if len(options.Secret) == 0 {
		return nil, fmt.Errorf("a signing secret is required")
	}

	validator := &jwtkit.HMAC256Validator{
		Secret: options.Secret,
	}

	router := mux.NewRouter()

	mux.UseAuthentication(router, mux.WithValidator(validator.Validate))

	mux.UseAuthorization(router)

	router.Healthz().AllowAnonymous()

	wskit.ConfigureWebSocketServer(router, options.Bus)

	if options.Market != nil {
		configureMarketRoutes(router, options.Market)
	}
	if options.Payment != nil {
		configurePaymentRoutes(router, options.Payment)
	}

	return router, nil
}
