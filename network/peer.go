package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	clockHeader  = "Clock"
	senderHeader = "SenderRank"
	groupHeader  = "Group"
)

// Peer is an helper struct for communication between processes.
// the Rank is an identifier of the Peer.
// Addresses[i] contains the address to reach the Peer with Rank i.
type Peer struct {
	Rank          int
	Addresses     map[int]string
	clock         uint64
	server        *http.Server
	client        *http.Client
	handler       *collectiveHandler
	timeout       time.Duration
	retryInterval time.Duration
	tlsConfig     *tls.Config
	scheme        string
	group         string
	logger        *slog.Logger
	closeOnce     *sync.Once
}

// NewPeer creates a Peer listening on l. A zero timeout makes every
// collective wait for the other peers without limit.
func NewPeer(rank int, addresses map[int]string, l net.Listener, timeout time.Duration) *Peer {
	p := NewPeerWithOptions(rank, addresses, WithTimeout(timeout))
	p.Start(l)
	return p
}

// Close shuts down the server of the peer.
// It is safe to call Close more than once.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.handler.done)
		err = p.server.Shutdown(context.Background())
	})
	return err
}

// Size is the number of peers in the group, p included.
func (p *Peer) Size() int {
	return len(p.Addresses)
}

type message struct {
	sender  int
	clock   uint64
	content []byte
}

type collectiveHandler struct {
	active         atomic.Bool
	clock          atomic.Uint64
	group          string
	contentChannel chan message
	errChannel     chan error
	done           chan struct{}
}

func newCollectiveHandler(group string) *collectiveHandler {
	return &collectiveHandler{
		group:          group,
		contentChannel: make(chan message),
		errChannel:     make(chan error),
		done:           make(chan struct{}),
	}
}

// fail reports err to the waiting peer unless the peer is closed.
func (h *collectiveHandler) fail(err error) {
	select {
	case h.errChannel <- err:
	case <-h.done:
	}
}

func (h *collectiveHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if !h.active.Load() {
		rw.WriteHeader(http.StatusNotAcceptable)
		return
	}
	if h.group != "" && req.Header.Get(groupHeader) != h.group {
		rw.WriteHeader(http.StatusForbidden)
		return
	}
	senderClockS := req.Header.Get(clockHeader)
	if senderClockS == "" {
		rw.WriteHeader(http.StatusNotAcceptable)
		h.fail(fmt.Errorf("from handler: Clock field is not present in request"))
		return
	}
	senderClock, err := strconv.ParseUint(senderClockS, 10, 64)
	if err != nil {
		rw.WriteHeader(http.StatusNotAcceptable)
		h.fail(fmt.Errorf("from handler: Clock field is not a number"))
		return
	}
	if senderClock != h.clock.Load() {
		rw.WriteHeader(http.StatusNotAcceptable)
		return
	}
	sender, err := strconv.Atoi(req.Header.Get(senderHeader))
	if err != nil {
		rw.WriteHeader(http.StatusNotAcceptable)
		h.fail(fmt.Errorf("from handler: SenderRank field is not a number"))
		return
	}
	content, err := io.ReadAll(req.Body)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		h.fail(fmt.Errorf("from handler: %v", err))
		return
	}
	select {
	case h.contentChannel <- message{sender: sender, clock: senderClock, content: content}:
		rw.WriteHeader(http.StatusAccepted)
	case <-h.done:
		rw.WriteHeader(http.StatusServiceUnavailable)
	}
}

// Peer with Rank root sends the content of bufferSend to every node.
// bufferRecv will contain the value sent by the Peer with Rank root.
// This function will implicitly synchronize the peers.
func (p *Peer) Broadcast(bufferSend []byte, root int) ([]byte, error) {
	bufferRecv, err := p.broadcastNoBarrier(bufferSend, root)
	if err != nil {
		return nil, err
	}
	err = p.barrier()
	if err != nil {
		return nil, err
	}
	return bufferRecv, nil
}

// Each caller of AllToAll sends the content of bufferSend to every node.
// bufferRecv[i] will contain the value sent by the Peer with Rank i.
// This function will implicitly synchronize the peers.
func (p *Peer) AllToAll(bufferSend []byte) (bufferRecv [][]byte, err error) {
	size, b := maxKey(p.Addresses)
	if !b {
		return nil, fmt.Errorf("no addresses found")
	}
	bufferRecv = make([][]byte, size+1)
	for _, i := range p.orderedRanks() {
		recv, err := p.broadcastNoBarrier(bufferSend, i)
		if err != nil {
			return nil, err
		}
		bufferRecv[i] = recv
	}
	return
}

// Peer with Rank root sends chunks[i] to the Peer with Rank i.
// The returned buffer is the chunk addressed to the caller.
// This function will implicitly synchronize the peers.
func (p *Peer) Scatter(chunks [][]byte, root int) ([]byte, error) {
	p.clock++
	var recv []byte
	if root == p.Rank {
		if len(chunks) != p.Size() {
			return nil, fmt.Errorf("scatter needs %d chunks, %d given", p.Size(), len(chunks))
		}
		for _, i := range p.orderedRanks() {
			if i == p.Rank {
				continue
			}
			if err := p.send(i, chunks[i]); err != nil {
				return nil, err
			}
		}
		recv = chunks[p.Rank]
	} else {
		msgs, err := p.receive(map[int]bool{root: true})
		if err != nil {
			return nil, err
		}
		recv = msgs[root]
	}
	if err := p.barrier(); err != nil {
		return nil, err
	}
	return recv, nil
}

// Every Peer sends bufferSend to the Peer with Rank root.
// On root bufferRecv[i] will contain the value sent by the Peer with Rank i,
// on the other peers bufferRecv is nil.
// This function will implicitly synchronize the peers.
func (p *Peer) Gather(bufferSend []byte, root int) (bufferRecv [][]byte, err error) {
	p.clock++
	if root == p.Rank {
		expected := make(map[int]bool, p.Size()-1)
		for i := range p.Addresses {
			if i != p.Rank {
				expected[i] = true
			}
		}
		msgs, err := p.receive(expected)
		if err != nil {
			return nil, err
		}
		bufferRecv = make([][]byte, p.Size())
		for i, content := range msgs {
			bufferRecv[i] = content
		}
		bufferRecv[p.Rank] = bufferSend
	} else if err := p.send(root, bufferSend); err != nil {
		return nil, err
	}
	if err := p.barrier(); err != nil {
		return nil, err
	}
	return bufferRecv, nil
}

// barrier synchronizes the peers.
// In particular this method guarantees that no Peer's control flow will
// leave this function until every peer has entered this function.
func (p *Peer) barrier() error {
	_, err := p.AllToAll(nil)
	if err != nil {
		return err
	}
	return nil
}

// helper function for creating n addresses localhost:PORT
func CreateAddresses(n int) map[int]string {
	addresses := make(map[int]string)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			panic(err)
		}
		addresses[i] = l.Addr().String()
		if err := l.Close(); err != nil {
			panic(err)
		}
	}
	return addresses
}

func CreateListeners(n int) (map[int]net.Listener, map[int]string) {
	listeners := make(map[int]net.Listener)
	addresses := make(map[int]string)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			panic(err)
		}
		listeners[i] = l
		addresses[i] = l.Addr().String()
	}
	return listeners, addresses
}

// Peer with Rank root sends the content of bufferSend to every node.
// bufferRecv will contain the value sent by the Peer with Rank root.
func (p *Peer) broadcastNoBarrier(bufferSend []byte, root int) ([]byte, error) {
	p.clock++
	if root == p.Rank {
		for _, i := range p.orderedRanks() {
			if i == p.Rank {
				continue
			}
			if err := p.send(i, bufferSend); err != nil {
				return nil, err
			}
		}
		return bufferSend, nil
	}
	msgs, err := p.receive(map[int]bool{root: true})
	if err != nil {
		return nil, err
	}
	return msgs[root], nil
}

// send posts bufferSend to the Peer with Rank dst for the current clock,
// retrying until dst accepts it.
func (p *Peer) send(dst int, bufferSend []byte) error {
	url := p.scheme + "://" + p.Addresses[dst]
	start := time.Now()
	attempts := 0
	for {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(bufferSend))
		if err != nil {
			return err
		}
		req.Header.Set(clockHeader, strconv.FormatUint(p.clock, 10))
		req.Header.Set(senderHeader, strconv.Itoa(p.Rank))
		if p.group != "" {
			req.Header.Set(groupHeader, p.group)
		}
		resp, err := p.client.Do(req)
		attempts++
		if err == nil {
			status := resp.StatusCode
			if err := resp.Body.Close(); err != nil {
				return err
			}
			if status == http.StatusAccepted {
				if attempts > 1 {
					p.logger.Debug("delivered after retries", "from", p.Rank, "to", dst, "clock", p.clock, "attempts", attempts)
				}
				return nil
			}
			err = fmt.Errorf("status code %d", status)
		}
		if p.timeout > 0 && time.Since(start) > p.timeout {
			p.logger.Debug("send timed out", "from", p.Rank, "to", dst, "clock", p.clock, "attempts", attempts)
			return fmt.Errorf("connection attempts to peer %d timed out with error %w", dst, err)
		}
		time.Sleep(p.retryInterval)
	}
}

// receive waits until every rank in from has posted a message for the
// current clock. Stale messages and messages of other senders are dropped.
func (p *Peer) receive(from map[int]bool) (map[int][]byte, error) {
	p.handler.clock.Store(p.clock)
	p.handler.active.Store(true)
	defer p.handler.active.Store(false)
	var timeoutTicker <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeoutTicker = timer.C
	}
	recv := make(map[int][]byte, len(from))
	for len(recv) < len(from) {
		select {
		case msg := <-p.handler.contentChannel:
			if msg.clock != p.clock || !from[msg.sender] {
				p.logger.Debug("unexpected message", "rank", p.Rank, "sender", msg.sender, "clock", msg.clock, "expected clock", p.clock)
				continue
			}
			recv[msg.sender] = msg.content
		case err := <-p.handler.errChannel:
			return nil, err
		case <-timeoutTicker:
			p.logger.Debug("receive timed out", "rank", p.Rank, "clock", p.clock, "received", len(recv), "expected", len(from))
			err := p.Close()
			return nil, errors.Join(err, fmt.Errorf("the peer waiting for connection timed out"))
		}
	}
	return recv, nil
}

func (p *Peer) orderedRanks() []int {
	var orderedRanks []int
	for k := range p.Addresses {
		orderedRanks = append(orderedRanks, k)
	}
	sort.Ints(orderedRanks)
	return orderedRanks
}

func maxKey(m map[int]string) (max int, ok bool) {
	ok = false
	for k := range m {
		if !ok || k > max {
			max = k
			ok = true
		}
	}
	return
}

func copyMap(original map[int]string) map[int]string {
	copied := make(map[int]string)
	for k, v := range original {
		copied[k] = v
	}
	return copied
}
