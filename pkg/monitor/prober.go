package monitor

import (
	"context"
	"net"
	"time"

	"github.com/cloudwisp/wisp/pkg/device"
	"github.com/cloudwisp/wisp/pkg/types"
)

// Prober checks reachability of one site. A nil error means the site
// answered within the probe's deadline.
type Prober interface {
	Probe(ctx context.Context, site *types.Site) error
}

// ProbeFunc adapts a function to the Prober interface
type ProbeFunc func(ctx context.Context, site *types.Site) error

func (f ProbeFunc) Probe(ctx context.Context, site *types.Site) error {
	return f(ctx, site)
}

// deviceProber is the production prober. Local sites share a network
// segment with the orchestrator, so a TCP dial of the declared endpoint
// is liveness enough; remote sites get a real identity query through
// the device client, exercising auth and the REST path end to end.
type deviceProber struct {
	dialer device.Dialer
}

// NewDeviceProber returns a Prober backed by the device client
func NewDeviceProber(dialer device.Dialer) Prober {
	return &deviceProber{dialer: dialer}
}

func (p *deviceProber) Probe(ctx context.Context, site *types.Site) error {
	if site.Kind == types.SiteKindLocal {
		return probeTCP(ctx, site.Endpoint.String())
	}

	_, err := p.dialer(site).GetIdentity(ctx)
	return err
}

func probeTCP(ctx context.Context, addr string) error {
	d := net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		d.Timeout = time.Until(deadline)
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
