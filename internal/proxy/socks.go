// Package proxy builds HTTP clients that tunnel through a SOCKS5 proxy,
// for setups where the model endpoint sits behind one.
package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// HTTPClient returns a client whose connections go through socksAddr
// (host:port). Timeout <= 0 means no client timeout; model streaming
// calls manage their own deadlines via context.
func HTTPClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}

	c := &http.Client{Transport: transport}
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c, nil
}
