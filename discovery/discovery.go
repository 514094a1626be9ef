// Package discovery lets the processes of a group find each other on one
// host without a list of addresses.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"

	"go.dedis.ch/protobuf"
)

// Discover serves an info payload on the first free port of a range and
// probes the other ports of the range for the payloads of other processes.
// Every answer is delivered on Entries.
type Discover struct {
	Entries   chan Entry
	info      []byte
	port      uint16
	startPort uint16
	endPort   uint16
	host      string
	attempts  uint
	interval  time.Duration
	server    *http.Server
	client    *http.Client
	done      chan struct{}
}

// Entry is the payload served by another process.
type Entry struct {
	Info []byte
	Port uint16
}

type option func(Discover) Discover

func WithPortRange(startPort, endPort uint16) option {
	return func(d Discover) Discover {
		d.startPort = startPort
		d.endPort = endPort
		return d
	}
}

func WithPort(port uint16) option {
	return WithPortRange(port, port)
}

// WithAttempts limits the number of sweeps of the port range.
// Zero sweeps until Close.
func WithAttempts(attempts uint) option {
	return func(d Discover) Discover {
		d.attempts = attempts
		return d
	}
}

func WithHost(host string) option {
	return func(d Discover) Discover {
		d.host = host
		return d
	}
}

// WithInterval sets the pause between two sweeps of the port range.
func WithInterval(interval time.Duration) option {
	return func(d Discover) Discover {
		d.interval = interval
		return d
	}
}

type handler struct {
	info []byte
}

func (h handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write(h.info); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func New(info []byte, opts ...option) (*Discover, error) {
	d := Discover{
		Entries:   make(chan Entry),
		info:      info,
		startPort: 9000,
		endPort:   9010,
		host:      "localhost",
		attempts:  1,
		interval:  time.Second,
		client:    &http.Client{Timeout: time.Second},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		d = opt(d)
	}

	var l net.Listener
	var err error
	var port uint16
	for port = d.startPort; port <= d.endPort && port >= d.startPort; port++ {
		l, err = net.Listen("tcp", net.JoinHostPort(d.host, fmt.Sprint(port)))
		if err == nil {
			d.port = port
			break
		}
	}
	if l == nil {
		return nil, errors.Join(fmt.Errorf("no free port in %d-%d", d.startPort, d.endPort), err)
	}
	d.server = &http.Server{Handler: handler{info: d.info}}
	go func() {
		if err := d.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()
	go func() {
		for i := uint(0); d.attempts == 0 || i < d.attempts; i++ {
			if !d.search() {
				return
			}
			select {
			case <-time.After(d.interval):
			case <-d.done:
				return
			}
		}
	}()
	return &d, nil
}

// Port is the port the payload is served on.
func (d *Discover) Port() uint16 {
	return d.port
}

// search sweeps the port range once. It returns false if d was closed.
func (d *Discover) search() bool {
	for port := d.startPort; port <= d.endPort && port >= d.startPort; port++ {
		if port == d.port {
			continue
		}
		resp, err := d.client.Get(fmt.Sprintf("http://%s", net.JoinHostPort(d.host, fmt.Sprint(port))))
		if err != nil {
			continue
		}
		buf, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}
		select {
		case d.Entries <- Entry{Info: buf, Port: port}:
		case <-d.done:
			return false
		}
	}
	return true
}

func (d *Discover) Close() error {
	close(d.done)
	return d.server.Shutdown(context.Background())
}

// Announcement is the payload a member of a group serves.
type Announcement struct {
	Group   string
	Address string
}

func (a Announcement) Encode() ([]byte, error) {
	return protobuf.Encode(&a)
}

func DecodeAnnouncement(buf []byte) (Announcement, error) {
	var a Announcement
	err := protobuf.Decode(buf, &a)
	return a, err
}

// FormGroup reads entries of d until size members of self.Group are known,
// self included. The addresses are returned sorted, and the rank of a member
// is the position of its address.
func FormGroup(d *Discover, self Announcement, size int, wait time.Duration) (addresses []string, rank int, err error) {
	members := map[string]struct{}{self.Address: {}}
	timeout := time.NewTimer(wait)
	defer timeout.Stop()
	for len(members) < size {
		select {
		case entry := <-d.Entries:
			a, err := DecodeAnnouncement(entry.Info)
			if err != nil || a.Group != self.Group || a.Address == "" {
				continue
			}
			members[a.Address] = struct{}{}
		case <-timeout.C:
			return nil, 0, fmt.Errorf("found %d of %d members of group %q", len(members), size, self.Group)
		}
	}
	for addr := range members {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	return addresses, sort.SearchStrings(addresses, self.Address), nil
}
