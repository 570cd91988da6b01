// Package gossip implements the membership protocol: heartbeat gossip with
// timeout-based failure detection.
//
// Every node keeps a table of the peers it believes alive together with
// their latest heartbeat and the local round at which that heartbeat last
// grew. Each round a node bumps its own heartbeat, drops peers silent for
// longer than the remove window, and sends its fresh entries to a couple of
// random peers. There is no failure message: a peer whose heartbeat stops
// growing is first left out of outgoing gossip (suspected), later removed.
//
// Typical usage, once per round:
//
//	m := gossip.New(self, clk, sender)
//	_ = m.Join(introducer)
//	...
//	m.HandleHeartbeat(hb) // for every inbound heartbeat
//	m.Tick()
package gossip
