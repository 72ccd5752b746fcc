package chathub

import (
	"context"
	"encoding/json"
	"sync"

	"socialdm/backend/internal/metrics"
	"socialdm/backend/internal/models"
	"socialdm/backend/internal/storage"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// RoomChannel carries events for everyone viewing one conversation.
func RoomChannel(conversationID string) string {
	return storage.ChannelPrefix + "room:" + conversationID
}

// PersonalChannel carries events for every connection of one user.
func PersonalChannel(userID string) string {
	return storage.ChannelPrefix + "user:" + userID
}

// Subscriber receives events delivered on the channels it joined. Deliver
// must not block; returning false means the event was dropped.
type Subscriber interface {
	ID() string
	Deliver(ev models.Event) bool
}

// Hub keeps the local channel memberships of this process and relays broker
// traffic to them. Every instance receives every published event and
// delivers it to the sessions it hosts.
type Hub struct {
	broker storage.Broker
	log    zerolog.Logger

	mu       sync.RWMutex
	channels map[string]map[string]Subscriber
}

func NewHub(broker storage.Broker, logger zerolog.Logger) *Hub {
	return &Hub{
		broker:   broker,
		log:      logger.With().Str("component", "hub").Logger(),
		channels: make(map[string]map[string]Subscriber),
	}
}

// Join adds sub to channel. It returns once the membership is in place.
func (h *Hub) Join(channel string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[string]Subscriber)
		h.channels[channel] = members
	}
	members[sub.ID()] = sub
}

// Leave removes sub from channel. No delivery to sub on that channel starts
// after Leave returns.
func (h *Hub) Leave(channel string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.channels[channel]
	delete(members, sub.ID())
	if len(members) == 0 {
		delete(h.channels, channel)
	}
}

// Members returns how many local subscribers joined channel.
func (h *Hub) Members(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Publish serializes ev and hands it to the broker.
func (h *Hub) Publish(ctx context.Context, channel string, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := h.broker.Publish(ctx, channel, payload); err != nil {
		metrics.BroadcastErrors.Inc()
		return err
	}
	return nil
}

// Start subscribes to the broker and relays deliveries until ctx ends. It
// returns after the subscription is live.
func (h *Hub) Start(ctx context.Context) error {
	deliveries, closer, err := h.broker.Subscribe(ctx)
	if err != nil {
		return errors.Wrap(err, "hub subscribe")
	}

	go func() {
		defer closer.Close()
		h.relay(ctx, deliveries)
	}()
	return nil
}

func (h *Hub) relay(ctx context.Context, deliveries <-chan storage.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				h.log.Warn().Msg("broker subscription closed")
				return
			}
			h.dispatch(d)
		}
	}
}

func (h *Hub) dispatch(d storage.Delivery) {
	var ev models.Event
	if err := json.Unmarshal(d.Payload, &ev); err != nil {
		h.log.Error().Err(err).Str("channel", d.Channel).Msg("undecodable event")
		return
	}

	// Delivering under the read lock keeps Leave synchronous: once it holds
	// the write lock no delivery is in flight.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.channels[d.Channel] {
		if !sub.Deliver(ev) {
			metrics.BroadcastDropped.Inc()
			h.log.Warn().Str("channel", d.Channel).Str("conn_id", sub.ID()).Str("type", ev.Type).Msg("subscriber buffer full, event dropped")
		}
	}
}
