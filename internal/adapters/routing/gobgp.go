// Package routing advertises the service VIP on the network so healthy
// registry nodes attract anycast traffic.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	pb "github.com/osrg/gobgp/v3/api"
	"github.com/osrg/gobgp/v3/pkg/server"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/regmarket/namereg/internal/core/ports"
	"github.com/regmarket/namereg/internal/infrastructure/metrics"
)

// BGPBackend defines the subset of GoBGP server methods we use,
// allowing us to mock it for testing.
type BGPBackend interface {
	Serve()
	Stop()
	StartBgp(ctx context.Context, r *pb.StartBgpRequest) error
	AddPeer(ctx context.Context, r *pb.AddPeerRequest) error
	AddPath(ctx context.Context, r *pb.AddPathRequest) (*pb.AddPathResponse, error)
	DeletePath(ctx context.Context, r *pb.DeletePathRequest) error
}

// GoBGPAdapter implements the RoutingEngine port using GoBGP.
type GoBGPAdapter struct {
	bgpServer  BGPBackend
	logger     *slog.Logger
	routerID   string
	listenPort int32
	nextHop    string
}

// NewGoBGPAdapter initializes a new GoBGPAdapter with a real GoBGP server.
func NewGoBGPAdapter(logger *slog.Logger) *GoBGPAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoBGPAdapter{
		bgpServer:  server.NewBgpServer(),
		logger:     logger,
		listenPort: -1, // no listener unless configured
	}
}

// SetConfig sets router identity, listen port, and the next hop advertised
// with each path. Zero values leave the current setting in place.
func (a *GoBGPAdapter) SetConfig(routerID string, listenPort int32, nextHop string) {
	if routerID != "" {
		a.routerID = routerID
	}
	if listenPort != 0 {
		a.listenPort = listenPort
	}
	if nextHop != "" {
		a.nextHop = nextHop
	}
}

// Start begins the BGP process and establishes peering.
func (a *GoBGPAdapter) Start(ctx context.Context, localASN, peerASN uint32, peerIP string) error {
	a.logger.Info("starting GoBGP engine", "local_asn", localASN, "peer_asn", peerASN, "peer_ip", peerIP)

	go a.bgpServer.Serve()

	if err := a.bgpServer.StartBgp(ctx, &pb.StartBgpRequest{
		Global: &pb.Global{
			Asn:        localASN,
			RouterId:   a.routerID,
			ListenPort: a.listenPort,
		},
	}); err != nil {
		return err
	}

	// Add Peer
	peer := &pb.Peer{
		Conf: &pb.PeerConf{
			NeighborAddress: peerIP,
			PeerAsn:         peerASN,
		},
	}
	if err := a.bgpServer.AddPeer(ctx, &pb.AddPeerRequest{Peer: peer}); err != nil {
		return err
	}

	return nil
}

// Announce advertises a VIP via BGP.
func (a *GoBGPAdapter) Announce(ctx context.Context, vip string) error {
	if a.bgpServer == nil {
		return errors.New("BGP server not started")
	}
	if net.ParseIP(vip) == nil {
		return fmt.Errorf("invalid VIP address: %s", vip)
	}

	a.logger.Info("announcing anycast VIP", "vip", vip)

	// Build NLRI
	nlri, _ := anypb.New(&pb.IPAddressPrefix{
		Prefix:    vip,
		PrefixLen: 32,
	})

	// Origin Attribute
	origin, _ := anypb.New(&pb.OriginAttribute{
		Origin: 0, // IGP
	})

	pattrs := []*anypb.Any{origin}
	if a.nextHop != "" {
		nextHop, _ := anypb.New(&pb.NextHopAttribute{NextHop: a.nextHop})
		pattrs = append(pattrs, nextHop)
	}

	path := &pb.Path{
		Nlri:   nlri,
		Pattrs: pattrs,
		Family: &pb.Family{Afi: pb.Family_AFI_IP, Safi: pb.Family_SAFI_UNICAST},
	}

	if _, err := a.bgpServer.AddPath(ctx, &pb.AddPathRequest{Path: path}); err != nil {
		return err
	}

	metrics.BGPAnnounced.Set(1)
	return nil
}

// Withdraw removes a VIP advertisement from BGP.
func (a *GoBGPAdapter) Withdraw(ctx context.Context, vip string) error {
	if a.bgpServer == nil {
		return errors.New("BGP server not started")
	}
	if net.ParseIP(vip) == nil {
		return fmt.Errorf("invalid VIP address: %s", vip)
	}

	a.logger.Info("withdrawing anycast VIP", "vip", vip)

	nlri, _ := anypb.New(&pb.IPAddressPrefix{
		Prefix:    vip,
		PrefixLen: 32,
	})

	path := &pb.Path{
		Nlri:   nlri,
		Family: &pb.Family{Afi: pb.Family_AFI_IP, Safi: pb.Family_SAFI_UNICAST},
	}

	if err := a.bgpServer.DeletePath(ctx, &pb.DeletePathRequest{Path: path}); err != nil {
		return err
	}

	metrics.BGPAnnounced.Set(0)
	return nil
}

// Stop gracefully shuts down the BGP engine.
func (a *GoBGPAdapter) Stop() error {
	if a.bgpServer != nil {
		a.bgpServer.Stop()
	}
	return nil
}

var _ ports.RoutingEngine = (*GoBGPAdapter)(nil)
