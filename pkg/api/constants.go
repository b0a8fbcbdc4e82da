package api

const (
	// Prefixes all keys in the document store (DATA or INVENTORY)
	DATA      = "DAT"
	INVENTORY = "INV"

	// Additional key parts
	AGREEMENTS = "AGREEMENTS"
	INVOICES   = "INVOICES"
	DEBITNOTES = "DEBITNOTES"
	ISSUED     = "ISSUED"
	RECEIVED   = "RECEIVED"
)

// Well-known service addresses. Addresses under /public are reachable by
// remote peers; /local is reserved for in-process services.
const (
	LocalPrefix    = "/local"
	PublicPrefix   = "/public"
	PingAddress    = "/public/ping"
	MarketAddress  = "/public/market"
	PaymentAddress = "/public/payment"
	TransferPrefix = "/public/transfer"
)

// TransferAddress returns the per-transfer service address for a resource
// token. Tokens are unique per transfer, so two transfers never share an
// address space.
func TransferAddress(token string) string {
	return TransferPrefix + "/" + token
}
