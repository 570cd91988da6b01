package gossip

import (
	"github.com/ryandielhenn/zephyrdht/pkg/address"
	"github.com/ryandielhenn/zephyrdht/pkg/wire"
)

// Sender delivers gossip messages. Delivery is best effort; an error only
// means the message could not be handed to the network at all.
type Sender interface {
	Send(to address.Address, m wire.Message) error
}
