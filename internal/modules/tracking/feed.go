package tracking

import (
	"context"

	"delitrack/internal/modules/relay"
	"delitrack/internal/wsclient"
)

// RelayFeed subscribes in-process to a relay service.
func RelayFeed(svc *relay.Service) Feed {
	return FeedFunc(func(ctx context.Context, orderID string) (Subscription, error) {
		sub, err := svc.Subscribe(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})
}

// RemoteFeed subscribes over the relay's websocket endpoint.
func RemoteFeed(c *wsclient.Client) Feed {
	return FeedFunc(func(ctx context.Context, orderID string) (Subscription, error) {
		sub, err := c.Subscribe(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return sub, nil
	})
}
