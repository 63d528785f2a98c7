package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/nearwire/tether/internal/config"
	"github.com/nearwire/tether/internal/observability"
	"github.com/nearwire/tether/internal/radio"
	"github.com/nearwire/tether/internal/radio/mem"
	"github.com/nearwire/tether/internal/radio/quic"
	"github.com/nearwire/tether/internal/radio/tcp"
	"github.com/nearwire/tether/internal/station"
	"github.com/rs/zerolog/log"
)

const shutdownGrace = 5 * time.Second

func main() {
	configPath := flag.String("config", "cmd/tetherd/config.toml", "station config file")
	flag.Parse()

	observability.InitLogger("tetherd")

	cfg, err := loadStationConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load station config")
	}
	log.Info().Str("path", *configPath).Msg("loaded station config")

	transport, err := buildTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build radio transport")
	}

	st, err := station.New(station.Options{
		Name:         cfg.Name,
		UUID:         cfg.UUID,
		Transport:    transport,
		HistoryLimit: cfg.HistoryLimit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build station")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Link.Mode {
	case linkModeListen:
		st.Listen(cfg.Link.Secure)
		log.Info().Bool("secure", cfg.Link.Secure).Msg("link listening on boot")
	case linkModeConnect:
		st.Connect(cfg.Link.Endpoint, cfg.Link.Secure)
		log.Info().Str("endpoint", cfg.Link.Endpoint).Bool("secure", cfg.Link.Secure).Msg("link connecting on boot")
	}

	if cfg.Admin.Addr == "" {
		log.Info().Str("station", cfg.Name).Str("radio", cfg.Radio.Kind).Msg("station up, admin api disabled")
		<-ctx.Done()
		log.Info().Msg("shutdown signal")
		return
	}

	srv := station.NewServer(st, station.ServerOptions{
		Addr:        cfg.Admin.Addr,
		CorsOrigins: cfg.Admin.CorsOrigins,
		AuthToken:   cfg.Admin.AuthToken,
	})
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	log.Info().
		Str("station", cfg.Name).
		Str("radio", cfg.Radio.Kind).
		Str("admin", cfg.Admin.Addr).
		Msg("station up")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal")
	case err := <-serveErr:
		if err != nil {
			log.Fatal().Err(err).Msg("admin api stopped")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("admin api shutdown")
	}
}

// buildTransport constructs the radio the station was configured with. The
// mem radio needs no addresses; it only ever reaches stations in the same
// process.
func buildTransport(cfg stationSettings) (radio.Transport, error) {
	switch cfg.Radio.Kind {
	case config.RadioTCP:
		serverTLS, err := cfg.Radio.TLS.ServerTLS()
		if err != nil {
			return nil, err
		}
		clientTLS, err := cfg.Radio.TLS.ClientTLS()
		if err != nil {
			return nil, err
		}
		return tcp.New(tcp.Options{
			ListenAddr:  cfg.Radio.ListenAddr,
			DialTimeout: cfg.DialTimeout,
			ServerTLS:   serverTLS,
			ClientTLS:   clientTLS,
		}), nil
	case config.RadioQUIC:
		serverTLS, err := cfg.Radio.TLS.ServerTLS()
		if err != nil {
			return nil, err
		}
		clientTLS, err := cfg.Radio.TLS.ClientTLS()
		if err != nil {
			return nil, err
		}
		return quic.New(quic.Options{
			ListenAddr:  cfg.Radio.ListenAddr,
			DialTimeout: cfg.DialTimeout,
			ServerTLS:   serverTLS,
			ClientTLS:   clientTLS,
		}), nil
	case config.RadioMem:
		return mem.NewNetwork(), nil
	}
	return nil, config.ErrUnknownRadioKind
}
