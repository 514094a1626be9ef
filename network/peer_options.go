package network

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// PeerOption configures a Peer built by NewPeerWithOptions.
type PeerOption func(Peer) Peer

const defaultRetryInterval = time.Millisecond

func NewPeerWithOptions(rank int, addresses map[int]string, opts ...PeerOption) *Peer {
	p := Peer{
		Rank:          rank,
		Addresses:     copyMap(addresses),
		clock:         0,
		client:        &http.Client{},
		retryInterval: defaultRetryInterval,
		scheme:        "http",
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		closeOnce:     &sync.Once{},
	}
	for _, opt := range opts {
		p = opt(p)
	}
	p.client.Timeout = p.timeout
	p.handler = newCollectiveHandler(p.group)
	p.server = &http.Server{Addr: p.Addresses[rank], Handler: p.handler}
	return &p
}

// Start serves the collective handler on l. With a certificate configured
// the listener is wrapped in TLS.
func (p *Peer) Start(l net.Listener) {
	if p.tlsConfig != nil && len(p.tlsConfig.Certificates) > 0 {
		l = tls.NewListener(l, p.tlsConfig)
	}
	go func() {
		err := p.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()
}

// WithTimeout bounds every send and receive of a collective.
// Zero, the default, waits forever.
func WithTimeout(timeout time.Duration) PeerOption {
	return func(p Peer) Peer {
		p.timeout = timeout
		return p
	}
}

func WithRetryInterval(interval time.Duration) PeerOption {
	return func(p Peer) Peer {
		p.retryInterval = interval
		return p
	}
}

// WithGroup makes the peer reject messages of processes that belong to
// another group, e.g. a previous run still retrying on the same port.
func WithGroup(group string) PeerOption {
	return func(p Peer) Peer {
		p.group = group
		return p
	}
}

func WithLogger(logger *slog.Logger) PeerOption {
	return func(p Peer) Peer {
		p.logger = logger
		return p
	}
}

func WithCertificate(cert tls.Certificate) PeerOption {
	return func(p Peer) Peer {
		if p.tlsConfig == nil {
			p.tlsConfig = &tls.Config{}
		}
		p.tlsConfig.Certificates = append(p.tlsConfig.Certificates, cert)
		p.client.Transport = &http.Transport{
			TLSClientConfig: p.tlsConfig,
		}
		p.scheme = "https"
		return p
	}
}

func WithLimitedCAs(certPool *x509.CertPool) PeerOption {
	return func(p Peer) Peer {
		if p.tlsConfig == nil {
			p.tlsConfig = &tls.Config{}
		}
		p.tlsConfig.RootCAs = certPool
		p.tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		p.tlsConfig.ClientCAs = certPool
		p.client.Transport = &http.Transport{
			TLSClientConfig: p.tlsConfig,
		}
		p.scheme = "https"
		return p
	}
}
