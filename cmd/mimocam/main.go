package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"mimo_cam/client/internal/config"
	"mimo_cam/client/internal/coordinator"
	"mimo_cam/client/internal/discovery"
	"mimo_cam/client/internal/domain"
	"mimo_cam/client/internal/media"
	"mimo_cam/client/internal/publisher"
	"mimo_cam/client/internal/registry"
	"mimo_cam/client/internal/subscriber"
	"mimo_cam/client/internal/transport"

	"github.com/rs/zerolog"
)

const helpText = `mimocam - camera/viewer client for the MIMO coordination server

Usage:
  mimocam -role camera [-name <label>]
  mimocam -role viewer [-camera <id>]

With no -camera, the viewer role prints the visible cameras and exits.

Environment Variables:
  MIMO_SERVER_URL     Coordination server websocket URL (skips LAN discovery)
  MIMO_ROLE           camera | viewer
  MIMO_CAMERA_NAME    Display name for the camera role
  MIMO_MEDIA_BACKEND  pion | sim
  MIMO_LOG_LEVEL      trace | debug | info | warn | error
`

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		role       = flag.String("role", "", "camera or viewer")
		cameraID   = flag.String("camera", "", "camera id to watch (viewer role)")
		name       = flag.String("name", "", "camera display name (camera role)")
		backend    = flag.String("media", "", "media backend: pion or sim")
		help       = flag.Bool("h", false, "show help")
	)
	flag.Parse()

	if *help {
		fmt.Print(helpText)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *role != "" {
		cfg.Role = *role
	}
	if *name != "" {
		cfg.Identity.CameraName = *name
	}
	if *backend != "" {
		cfg.Media.Backend = *backend
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		Level(lvl).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	// Resolve the server URL, via LAN discovery when not configured.
	if cfg.Transport.URL == "" {
		scanner := discovery.New(cfg.Discovery, logger)
		res, err := scanner.Scan(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("no server configured and discovery failed")
		}
		cfg.Transport.URL = res.URL
	}

	var mediaCap domain.MediaCapability
	switch strings.ToLower(cfg.Media.Backend) {
	case "sim":
		mediaCap = media.NewSim(media.SimConfig{}, logger)
	default:
		mediaCap, err = media.NewPion(cfg.Media.Pion, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create media backend")
		}
	}

	reg := registry.New()
	sock := transport.New(transport.Config{
		URL:              cfg.Transport.URL,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		BackoffBase:      cfg.Transport.BackoffBase,
		BackoffMax:       cfg.Transport.BackoffMax,
		BackoffJitter:    cfg.Transport.BackoffJitter,
		MaxRetries:       cfg.Transport.MaxRetries,
	}, logger, nil)

	coord := coordinator.New(coordinator.Config{
		NegotiationTimeout: cfg.Media.NegotiationTimeout,
	}, sock, reg, mediaCap, logger)
	sock.SetSink(coord.HandleTransportEvent)

	defer func() {
		coord.Stop()
		sock.Close()
	}()

	switch cfg.Role {
	case "camera":
		runCamera(ctx, cfg, coord, sock, logger)
	case "viewer":
		runViewer(ctx, *cameraID, coord, sock, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n\n%s", cfg.Role, helpText)
		os.Exit(2)
	}
}

func runCamera(ctx context.Context, cfg *config.Config, coord *coordinator.Coordinator, sock *transport.Socket, logger zerolog.Logger) {
	pub := publisher.New(coord, cfg.Identity.Prefix, logger)
	coord.AddObserver(pub)

	sock.Connect()
	if !waitConnected(ctx, coord, 15*time.Second) {
		logger.Fatal().Msg("could not reach coordination server")
	}

	id, err := pub.RegisterIdentity(cfg.Identity.CameraName)
	if err != nil {
		logger.Fatal().Err(err).Msg("register identity")
	}
	if err := pub.StartPublishing(); err != nil {
		logger.Fatal().Err(err).Msg("start publishing")
	}
	logger.Info().Str("camera", id).Msg("publishing; waiting for viewers")

	<-ctx.Done()
	pub.StopPublishing()
}

func runViewer(ctx context.Context, cameraID string, coord *coordinator.Coordinator, sock *transport.Socket, logger zerolog.Logger) {
	sub := subscriber.New(coord, logger)
	coord.AddObserver(sub)

	sock.Connect()
	if !waitConnected(ctx, coord, 15*time.Second) {
		logger.Fatal().Msg("could not reach coordination server")
	}

	if cameraID == "" {
		// Give the server a beat to push the camera list.
		time.Sleep(time.Second)
		cams := sub.Cameras()
		if len(cams) == 0 {
			fmt.Println("no cameras online")
			return
		}
		for _, cam := range cams {
			fmt.Printf("%s\t%s\t%s\n", cam.ID, cam.DisplayName, cam.Status)
		}
		return
	}

	if !waitForCamera(ctx, coord, cameraID, 10*time.Second) {
		logger.Fatal().Str("camera", cameraID).Msg("camera not visible")
	}
	if err := sub.ConnectToCamera(cameraID); err != nil {
		logger.Fatal().Err(err).Msg("connect to camera")
	}
	if err := sub.StartWatching(cameraID); err != nil {
		logger.Fatal().Err(err).Msg("start watching")
	}
	logger.Info().Str("camera", cameraID).Msg("watching")

	<-ctx.Done()
	sub.Disconnect()
}

func waitConnected(ctx context.Context, coord *coordinator.Coordinator, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if coord.Connected() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return false
}

func waitForCamera(ctx context.Context, coord *coordinator.Coordinator, id string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, ok := coord.Camera(id); ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
	return false
}
