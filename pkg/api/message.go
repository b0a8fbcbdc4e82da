package api

import "github.com/fgrzl/json/polymorphic"

// Marker interface for messages routed through the bus. The polymorphic
// discriminator doubles as the wire operation id and must remain stable
// once deployed; peers dispatch on it.
type Message interface {
	polymorphic.Polymorphic
}
