// README: Rider agent; reads the device position and publishes it to the relay until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"delitrack/internal/config"
	"delitrack/internal/infra"
	"delitrack/internal/maps"
	"delitrack/internal/modules/geosource"
	"delitrack/internal/observability"
	"delitrack/internal/types"
	"delitrack/internal/wsclient"
)

type options struct {
	orderID   string
	relayURL  string
	provider  string
	transport string
	port      string
	baud      int
	script    string
}

func main() {
	var opts options
	flag.StringVar(&opts.orderID, "order", "", "order number to deliver (required)")
	flag.StringVar(&opts.relayURL, "relay", "ws://localhost:5001/ws", "relay websocket URL")
	flag.StringVar(&opts.provider, "provider", "nmea", "position provider: nmea, google or static")
	flag.StringVar(&opts.transport, "transport", "ws", "publish transport: ws or mqtt")
	flag.StringVar(&opts.port, "port", "/dev/ttyUSB0", "GPS serial port (nmea)")
	flag.IntVar(&opts.baud, "baud", 9600, "GPS serial baud rate (nmea)")
	flag.StringVar(&opts.script, "points", "", "static route as lat,lng;lat,lng;...")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Pretty).With().Str("order_id", opts.orderID).Logger()
	if opts.orderID == "" {
		logger.Fatal().Msg("-order is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	provider, err := newProvider(opts, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("position provider")
	}

	g, gctx := errgroup.WithContext(ctx)
	var publisher geosource.Publisher
	switch opts.transport {
	case "mqtt":
		if cfg.MQTT.Broker == "" {
			logger.Fatal().Msg("TRACK_MQTT_BROKER is required for the mqtt transport")
		}
		client, err := infra.NewMQTT(ctx, cfg.MQTT.Broker, cfg.MQTT.ClientID+"-rider-"+opts.orderID, observability.Component(logger, "mqtt"))
		if err != nil {
			logger.Fatal().Err(err).Msg("mqtt init")
		}
		defer client.Disconnect(250)
		publisher = geosource.NewMQTTPublisher(client, cfg.MQTT.Topic, byte(cfg.MQTT.QOS))
	case "ws":
		pub := wsclient.New(opts.relayURL, observability.Component(logger, "wsclient")).
			NewPublisher(opts.orderID, cfg.Tracking.ReconnectBase, cfg.Tracking.ReconnectMax)
		g.Go(func() error { return pub.Run(gctx) })
		publisher = pub
	default:
		logger.Fatal().Str("transport", opts.transport).Msg("unknown transport")
	}

	watcher := &geosource.PollingWatcher{
		Provider:    provider,
		Interval:    cfg.Source.PollInterval,
		ReadTimeout: cfg.Source.ReadTimeout,
		MaxFailures: cfg.Source.MaxFailures,
		Logger:      observability.Component(logger, "watcher"),
	}
	source := geosource.New(watcher, publisher, geosource.Options{
		KeepAlive: cfg.Source.KeepAlive,
		Logger:    observability.Component(logger, "source"),
	})

	sourceErr := make(chan error, 1)
	source.OnError(func(err error) {
		select {
		case sourceErr <- err:
		default:
		}
		logger.Error().Err(err).Str("hint", geosource.UserMessage(err)).Msg("location tracking stopped")
		cancel()
	})
	if err := source.Start(gctx, opts.orderID); err != nil {
		logger.Fatal().Err(err).Msg("start tracking")
	}
	logger.Info().Str("provider", opts.provider).Str("transport", opts.transport).Msg("tracking started")

	<-gctx.Done()
	source.Stop()
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("publisher stopped")
	}
	logger.Info().Int64("samples_sent", source.Sent()).Msg("tracking stopped")
	select {
	case <-sourceErr:
		os.Exit(1)
	default:
	}
}

func newProvider(opts options, cfg config.Config) (geosource.Provider, error) {
	switch opts.provider {
	case "nmea":
		return geosource.NewNMEAProvider(opts.port, opts.baud), nil
	case "google":
		if cfg.Maps.APIKey == "" {
			return nil, errors.New("TRACK_MAPS_API_KEY is required for the google provider")
		}
		return maps.NewGeolocationService(cfg.Maps.APIKey)
	case "static":
		points, err := parsePoints(opts.script)
		if err != nil {
			return nil, err
		}
		return geosource.NewStaticProvider(points...), nil
	}
	return nil, fmt.Errorf("unknown provider %q", opts.provider)
}

func parsePoints(s string) ([]types.Point, error) {
	var points []types.Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad point %q, want lat,lng", pair)
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		p := types.Point{Lat: lat, Lng: lng}
		if err1 != nil || err2 != nil || !p.Valid() {
			return nil, fmt.Errorf("bad point %q", pair)
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, errors.New("-points is required for the static provider")
	}
	return points, nil
}

