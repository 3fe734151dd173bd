package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/optical.position/internal/api"
	"github.com/banshee-data/optical.position/internal/config"
	"github.com/banshee-data/optical.position/internal/db"
	"github.com/banshee-data/optical.position/internal/feed"
	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/geometry"
	"github.com/banshee-data/optical.position/internal/monitoring"
	"github.com/banshee-data/optical.position/internal/serialmux"
	"github.com/banshee-data/optical.position/internal/tracking"
)

// devSerialInterval is how often the synthetic serial link reports.
const devSerialInterval = 5 * time.Second

// feedBuffer bounds how far a feed may run ahead of the tracking loop.
const feedBuffer = 64

type runOptions struct {
	dev            bool
	replay         string
	replayRealtime bool
}

// run wires the feeds, store, publisher and HTTP server and blocks until ctx
// is cancelled or a component fails.
func run(ctx context.Context, cfg *config.TrackerConfig, opts runOptions) error {
	camera, err := cfg.CameraConfig()
	if err != nil {
		return err
	}
	f, err := fusion.New(camera)
	if err != nil {
		return err
	}

	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	history := api.NewHistory(api.DefaultHistorySize)
	serviceOpts := []tracking.Option{
		tracking.WithPlatformRecorder(store),
		tracking.WithSink("store", store),
		tracking.WithSink("history", history),
	}

	var publisher *feed.Publisher
	if addr := cfg.GetCorrectionForward(); addr != "" {
		publisher, err = feed.NewPublisher(addr, cfg.GetLogInterval())
		if err != nil {
			return err
		}
		defer publisher.Close()
		serviceOpts = append(serviceOpts, tracking.WithSink("udp", publisher))
	}
	service := tracking.NewService(f, serviceOpts...)

	serial, err := openSerial(cfg, opts.dev)
	if err != nil {
		return err
	}
	defer serial.Close()

	g, ctx := errgroup.WithContext(ctx)

	platformCh := make(chan fusion.PlatformState, feedBuffer)
	pixelCh := make(chan geometry.PixelOffset, feedBuffer)
	apiOpts := []api.Option{
		api.WithStore(store),
		api.WithHistory(history),
		api.WithSerial(serial),
	}

	g.Go(func() error { return ignoreCanceled(service.Run(ctx, platformCh, pixelCh)) })
	g.Go(func() error {
		service.LogStats(ctx, cfg.GetLogInterval())
		return nil
	})
	if publisher != nil {
		publisher.Start(ctx)
	}

	platformSource := cfg.GetPlatformSource()
	if opts.replay != "" {
		handlers, err := replayHandlers(ctx, cfg, platformSource, platformCh, pixelCh)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := feed.ReadPCAPFile(ctx, opts.replay, handlers, opts.replayRealtime); err != nil {
				return ignoreCanceled(err)
			}
			monitoring.Logf("replay of %s complete", opts.replay)
			return nil
		})
	} else {
		pixels := feed.NewUDPListener(feed.UDPListenerConfig{
			Name:        "pixel",
			Address:     cfg.GetPixelListen(),
			LogInterval: cfg.GetLogInterval(),
			Handler:     tracking.PixelFeed(ctx, pixelCh),
		})
		apiOpts = append(apiOpts, api.WithFeedStats("pixel", pixels.Stats))
		g.Go(func() error { return ignoreCanceled(pixels.Start(ctx)) })

		if platformSource == config.PlatformSourceUDP {
			platform := feed.NewUDPListener(feed.UDPListenerConfig{
				Name:        "platform",
				Address:     cfg.GetPlatformListen(),
				LogInterval: cfg.GetLogInterval(),
				Handler:     tracking.PlatformFeed(ctx, platformCh),
			})
			apiOpts = append(apiOpts, api.WithFeedStats("platform", platform.Stats))
			g.Go(func() error { return ignoreCanceled(platform.Start(ctx)) })
		}
	}

	if platformSource == config.PlatformSourceSerial {
		// Subscribe before Monitor starts reading the port.
		subID, lines := serial.Subscribe()
		defer serial.Unsubscribe(subID)
		g.Go(func() error {
			err := serial.Monitor(ctx)
			monitoring.Logf("serial monitor routine terminated")
			return ignoreCanceled(err)
		})
		g.Go(func() error {
			serialmux.Consume(lines, ctx.Done(), func(state fusion.PlatformState) {
				select {
				case platformCh <- state:
				case <-ctx.Done():
				}
			})
			return nil
		})
	}

	mux := api.NewServer(service, apiOpts...).ServeMux()
	serial.AttachAdminRoutes(mux)
	if err := store.AttachAdminRoutes(mux); err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		monitoring.Logf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("HTTP server force close error: %v", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// openSerial returns the telemetry link for the configured platform source.
// Sources other than serial get a disabled link so the admin routes still
// exist.
func openSerial(cfg *config.TrackerConfig, dev bool) (serialmux.SerialMuxInterface, error) {
	if source := cfg.GetPlatformSource(); source != config.PlatformSourceSerial {
		return serialmux.NewDisabledSerialMux(source), nil
	}

	var m serialmux.SerialMuxInterface
	if dev {
		monitoring.Logf("dev mode: using synthetic serial link")
		m = serialmux.NewMockSerialMux(devSerialInterval)
	} else {
		port, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.GetSerialOptions(), cfg.SerialInitCommands...)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port: %w", err)
		}
		m = port
	}
	if err := m.Initialise(); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to initialise serial link: %w", err)
	}
	return m, nil
}

// replayHandlers maps the configured UDP ports to feed handlers for PCAP
// replay.
func replayHandlers(ctx context.Context, cfg *config.TrackerConfig, platformSource string,
	platformCh chan<- fusion.PlatformState, pixelCh chan<- geometry.PixelOffset) (map[int]feed.Handler, error) {
	handlers := make(map[int]feed.Handler)

	pixelPort, err := udpPort(cfg.GetPixelListen())
	if err != nil {
		return nil, err
	}
	handlers[pixelPort] = tracking.PixelFeed(ctx, pixelCh)

	if platformSource == config.PlatformSourceUDP {
		platformPort, err := udpPort(cfg.GetPlatformListen())
		if err != nil {
			return nil, err
		}
		if platformPort == pixelPort {
			return nil, fmt.Errorf("pixel and platform feeds share port %d", pixelPort)
		}
		handlers[platformPort] = tracking.PlatformFeed(ctx, platformCh)
	}
	return handlers, nil
}

func udpPort(address string) (int, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in listen address %q", address)
	}
	return port, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
