// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	apihandlers "delitrack/internal/http/handlers"
	"delitrack/internal/http/middleware"
	"delitrack/internal/modules/order"
	"delitrack/internal/modules/route"
)

type RouterDeps struct {
	Orders     *order.Service
	Directions route.DirectionsProvider
	Places     route.PlaceResolver
	Tracking   apihandlers.TrackingHandlerDeps
	Logger     zerolog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	mapsHandler := apihandlers.NewMapsHandler(deps.Directions, deps.Places)
	r.GET("/api/maps/directions", mapsHandler.Directions)
	r.GET("/api/maps/place-details", mapsHandler.PlaceDetails)

	orderHandler := apihandlers.NewOrderHandler(deps.Orders)
	r.GET("/api/orders/:id/tracking", orderHandler.Tracking)
	r.POST("/api/orders/:id/status", orderHandler.UpdateStatus)

	trackingHandler := apihandlers.NewTrackingHandler(deps.Tracking)
	r.GET("/api/tracking/:orderId/room", trackingHandler.Room)
	r.GET("/ws", trackingHandler.ServeWS)
	r.GET("/ws/scene/:orderId", trackingHandler.Scene)

	origins := deps.Tracking.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)
}
