// Package wake powers on the database host with Wake-on-LAN and waits until
// PostgreSQL accepts TCP connections.
package wake

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

const (
	wolPort            = "9"
	defaultTimeout     = 5 * time.Minute
	defaultPoll        = 5 * time.Second
	defaultDialTimeout = 3 * time.Second
)

// Service defines the interface for waking the database host.
type Service interface {
	Wake(ctx context.Context, cfg models.WakeConfig, address string) (*models.WakeResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// Dialer allows mocking the reachability check.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultClient sends magic packets using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to mac through the broadcast address.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	if err := client.Wake(net.JoinHostPort(ip.String(), wolPort), mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the wake Service interface.
type Impl struct {
	wolClient Client
	dialer    Dialer
	logger    zerolog.Logger
}

// New creates a new wake service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		dialer:    &net.Dialer{Timeout: defaultDialTimeout},
		logger:    logger,
	}
}

// NewWithClients creates a new wake service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, dialer Dialer) *Impl {
	return &Impl{
		wolClient: wolClient,
		dialer:    dialer,
		logger:    logger,
	}
}

// Wake sends the magic packet and blocks until address accepts TCP
// connections, the timeout elapses or ctx is done. Failures are reported in
// the result.
func (s *Impl) Wake(ctx context.Context, cfg models.WakeConfig, address string) (*models.WakeResult, error) {
	result := &models.WakeResult{Address: address}
	start := time.Now()

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
		return result, nil
	}

	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("broadcast", cfg.BroadcastIP).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}
	result.PacketSent = true

	s.logger.Info().
		Str("address", address).
		Dur("timeout", orDefault(cfg.Timeout, defaultTimeout)).
		Msg("waiting for database port")

	if err := s.waitForPort(ctx, cfg, address); err != nil {
		result.WaitDuration = time.Since(start)
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	if cfg.StabilizeWait > 0 {
		s.logger.Debug().Dur("wait", cfg.StabilizeWait).Msg("waiting for database to stabilize")
		select {
		case <-ctx.Done():
			result.WaitDuration = time.Since(start)
			result.Error = ctx.Err()
			return result, nil
		case <-time.After(cfg.StabilizeWait):
		}
	}

	result.TargetReady = true
	result.WaitDuration = time.Since(start)

	s.logger.Info().
		Dur("duration", result.WaitDuration).
		Msg("database host is ready")

	return result, nil
}

func (s *Impl) waitForPort(ctx context.Context, cfg models.WakeConfig, address string) error {
	deadline := time.Now().Add(orDefault(cfg.Timeout, defaultTimeout))
	interval := orDefault(cfg.PollInterval, defaultPoll)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for %s", address)
		}

		conn, err := s.dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		s.logger.Debug().Err(err).Msg("database port not reachable yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
