package network

// P2P adapts a Peer to the collective.Communicator interface.
type P2P struct {
	peer *Peer
}

func NewP2P(peer *Peer) *P2P {
	return &P2P{peer: peer}
}

// Broadcast sends data from root to every peer.
func (p *P2P) Broadcast(data []byte, root int) ([]byte, error) {
	return p.peer.Broadcast(data, root)
}

// AllToAll sends data from every peer to every peer.
func (p *P2P) AllToAll(data []byte) ([][]byte, error) {
	return p.peer.AllToAll(data)
}

// Scatter sends chunks[i] from root to the peer with rank i.
func (p *P2P) Scatter(chunks [][]byte, root int) ([]byte, error) {
	return p.peer.Scatter(chunks, root)
}

// Gather collects data of every peer on root.
func (p *P2P) Gather(data []byte, root int) ([][]byte, error) {
	return p.peer.Gather(data, root)
}

func (p *P2P) GetRank() int {
	return p.peer.Rank
}

func (p *P2P) GetPeerCount() int {
	return p.peer.Size()
}

func (p *P2P) GetAddresses() map[int]string {
	return p.peer.Addresses
}

func (p *P2P) Close() error {
	return p.peer.Close()
}
