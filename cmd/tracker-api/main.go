// README: Entry point; loads config, wires relay, routing and order lookup, and serves HTTP and websockets.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"delitrack/internal/config"
	httptransport "delitrack/internal/http"
	"delitrack/internal/http/handlers"
	"delitrack/internal/infra"
	"delitrack/internal/maps"
	"delitrack/internal/modules/mapview"
	"delitrack/internal/modules/order"
	"delitrack/internal/modules/relay"
	"delitrack/internal/modules/route"
	"delitrack/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	registry := relay.NewRoomRegistry(observability.Component(logger, "relay"))
	var broker relay.Broker = relay.NewLocalBroker(registry)
	if cfg.Relay.Broker == "redis" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis init")
		}
		defer rdb.Close()
		rb := relay.NewRedisBroker(rdb, registry, observability.Component(logger, "broker"))
		logger.Info().Str("origin", rb.Origin()).Msg("relay rooms shared through redis")
		broker = rb
	}
	relaySvc := relay.NewService(registry, broker, cfg.Relay.SendBuffer, observability.Component(logger, "relay"))

	directions, places := mapsProviders(cfg, logger)
	var engineProvider route.DirectionsProvider = directions
	var resolver route.PlaceResolver = places
	if cfg.Route.ProxyURL != "" {
		proxy := route.NewProxyClient(cfg.Route.ProxyURL, cfg.Route.RequestTimeout)
		engineProvider, resolver = proxy, proxy
	}

	routeLogger := observability.Component(logger, "route")
	restaurant := route.NewRestaurantLocator(resolver, cfg.Maps.RestaurantPlace, cfg.Maps.Restaurant, routeLogger)
	engine := route.NewEngine(route.Options{
		Provider:     engineProvider,
		Restaurant:   restaurant.Coordinates(ctx),
		MinutesPerKm: cfg.Route.MinutesPerKm,
		Logger:       routeLogger,
	})

	var finder order.Finder
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres init")
		}
		defer pool.Close()
		finder = order.NewStore(pool)
	} else {
		logger.Warn().Msg("no database configured, order lookups disabled")
	}
	orderSvc := order.NewService(order.Options{
		Finder:      finder,
		Geocoder:    engine,
		Notifier:    relaySvc,
		Restaurant:  restaurant,
		DefaultDest: cfg.Maps.DefaultDest,
		Logger:      observability.Component(logger, "order"),
	})

	if cfg.MQTT.Broker != "" {
		client, err := infra.NewMQTT(ctx, cfg.MQTT.Broker, cfg.MQTT.ClientID, observability.Component(logger, "mqtt"))
		if err != nil {
			logger.Fatal().Err(err).Msg("mqtt init")
		}
		defer client.Disconnect(250)
		ingest := relay.NewMQTTIngest(client, broker, cfg.MQTT.Topic, byte(cfg.MQTT.QOS), observability.Component(logger, "mqtt"))
		g.Go(func() error { return ingest.Run(ctx) })
	}

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Orders:     orderSvc,
		Directions: directions,
		Places:     places,
		Tracking: handlers.TrackingHandlerDeps{
			Relay:  relaySvc,
			Orders: orderSvc,
			Engine: engine,
			ConnOptions: relay.ConnOptions{
				SendBuffer: cfg.Relay.SendBuffer,
				PongWait:   cfg.Relay.PongWait,
				WriteWait:  cfg.Relay.WriteWait,
				Rate:       cfg.Relay.InboundRate,
				Burst:      cfg.Relay.InboundBurst,
			},
			MapOptions: mapview.Options{
				LoadTimeout: cfg.Maps.LoadTimeout,
				Padding:     cfg.Maps.FitPadding,
				Logger:      observability.Component(logger, "mapview"),
			},
			ReconnectBase:  cfg.Tracking.ReconnectBase,
			ReconnectMax:   cfg.Tracking.ReconnectMax,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Logger:         observability.Component(logger, "ws"),
		},
		Logger: observability.Component(logger, "http"),
	})
	server := httptransport.NewServer(cfg.HTTP.Addr, handler, cfg.HTTP.ShutdownTimeout, logger)

	g.Go(func() error { return broker.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("tracker-api stopped")
		os.Exit(1)
	}
	logger.Info().Msg("tracker-api stopped")
}

// mapsProviders builds the Google-backed directions and place lookups when an
// API key is configured. Nil interfaces are returned otherwise.
func mapsProviders(cfg config.Config, logger zerolog.Logger) (route.DirectionsProvider, route.PlaceResolver) {
	if cfg.Maps.APIKey == "" {
		logger.Warn().Msg("no maps api key, directions proxy disabled")
		return nil, nil
	}
	rs, err := maps.NewRouteService(cfg.Maps.APIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("maps directions client")
	}
	ps, err := maps.NewPlacesService(cfg.Maps.APIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("maps places client")
	}
	return rs, ps
}
