package events

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

type publisher interface {
	publish(channel string, message any) error
}

type pubnubPublisher struct {
	pn *pubnub.PubNub
}

func (p pubnubPublisher) publish(channel string, message any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// PubNubNotifier pushes events to the per-order channel the checkout page
// listens on.
type PubNubNotifier struct {
	pub publisher
}

func NewPubNubNotifier(cfg *PubNubConfig) *PubNubNotifier {
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey

	return &PubNubNotifier{pub: pubnubPublisher{pn: pubnub.NewPubNub(pnConfig)}}
}

func Channel(orderID string) string {
	return "order-" + orderID
}

func (n *PubNubNotifier) Notify(_ context.Context, ev Event) error {
	if err := n.pub.publish(Channel(ev.OrderID), ev); err != nil {
		return fmt.Errorf("pubnub publish %s: %w", ev.Kind, err)
	}
	return nil
}
