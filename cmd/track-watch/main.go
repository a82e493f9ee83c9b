// README: Terminal tracker; follows one order through the relay and prints each view change as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"delitrack/internal/config"
	"delitrack/internal/modules/mapview"
	"delitrack/internal/modules/order"
	"delitrack/internal/modules/route"
	"delitrack/internal/modules/tracking"
	"delitrack/internal/observability"
	"delitrack/internal/wsclient"
)

func main() {
	var (
		orderID = flag.String("order", "", "order id or number (required)")
		apiURL  = flag.String("api", "http://localhost:5001", "tracker-api base URL")
		relay   = flag.String("relay", "", "relay websocket URL (default derived from -api)")
		view    = flag.String("view", "customer", "admin or customer")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Pretty)
	if *orderID == "" {
		logger.Fatal().Msg("-order is required")
	}
	base := strings.TrimRight(*apiURL, "/")
	if *relay == "" {
		*relay = "ws" + strings.TrimPrefix(base, "http") + "/ws"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := fetchTracking(ctx, base, *orderID)
	if err != nil {
		logger.Warn().Err(err).Msg("order lookup failed, using configured coordinates")
		info = order.TrackingInfo{
			Room:        *orderID,
			Restaurant:  cfg.Maps.Restaurant,
			Destination: cfg.Maps.DefaultDest,
		}
	}

	engine := route.NewEngine(route.Options{
		Provider:     route.NewProxyClient(base+"/api/maps", cfg.Route.RequestTimeout),
		Restaurant:   info.Restaurant,
		MinutesPerKm: cfg.Route.MinutesPerKm,
		Logger:       observability.Component(logger, "route"),
	})

	sdk := &mapview.SceneSDK{OnChange: func(container string, fc *geojson.FeatureCollection) {
		logger.Debug().Str("container", container).Int("features", len(fc.Features)).Msg("scene updated")
	}}
	adapter := mapview.NewAdapter(mapview.StaticLoader(sdk), mapview.Options{
		LoadTimeout: cfg.Maps.LoadTimeout,
		Padding:     cfg.Maps.FitPadding,
		Logger:      observability.Component(logger, "mapview"),
	})

	enc := json.NewEncoder(os.Stdout)
	consumer := tracking.New(
		tracking.RemoteFeed(wsclient.New(*relay, observability.Component(logger, "wsclient"))),
		engine,
		adapter,
		tracking.Options{
			Variant:       tracking.Variant(*view),
			OrderID:       info.Room,
			ContainerID:   "terminal",
			Restaurant:    info.Restaurant,
			Destination:   info.Destination,
			Status:        string(info.Status),
			ReconnectBase: cfg.Tracking.ReconnectBase,
			ReconnectMax:  cfg.Tracking.ReconnectMax,
			Logger:        observability.Component(logger, "tracking"),
			OnChange: func(v tracking.View) {
				_ = enc.Encode(v)
			},
		},
	)
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start tracking")
	}
	<-ctx.Done()
	consumer.Stop()
}

func fetchTracking(ctx context.Context, base, orderID string) (order.TrackingInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/orders/"+orderID+"/tracking", nil)
	if err != nil {
		return order.TrackingInfo{}, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return order.TrackingInfo{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return order.TrackingInfo{}, fmt.Errorf("tracking info: status %d", res.StatusCode)
	}
	var info order.TrackingInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return order.TrackingInfo{}, err
	}
	return info, nil
}
