package api

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const resubscribeDelay = 1 * time.Second

// Bridge fans task event frames out across instances over a redis pub/sub
// channel. Each frame is tagged with the publishing instance so subscribers
// can skip their own traffic.
type Bridge struct {
	rc         *redis.Client
	channel    string
	instanceID string
	logger     *log.Logger
}

type bridgeFrame struct {
	Origin string `json:"origin"`
	Data   []byte `json:"data"`
}

func NewBridge(rc *redis.Client, channel string, logger *log.Logger) *Bridge {
	return &Bridge{
		rc:         rc,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// Publish sends an already encoded frame to the other instances. Publish
// failures are logged and swallowed; local delivery already happened.
func (b *Bridge) Publish(ctx context.Context, data []byte) {
	frame, err := sonic.Marshal(bridgeFrame{Origin: b.instanceID, Data: data})
	if err != nil {
		b.logger.Errorf("encode bridge frame: %v", err)
		return
	}
	if err := b.rc.Publish(ctx, b.channel, frame).Err(); err != nil {
		b.logger.Errorf("publish to %s: %v", b.channel, err)
	}
}

// Run subscribes to the bridge channel and hands each remote frame to
// deliver. It resubscribes after transport errors and returns when ctx is
// cancelled.
func (b *Bridge) Run(ctx context.Context, deliver func([]byte)) {
	for {
		if err := b.consume(ctx, deliver); err != nil {
			b.logger.Errorf("bridge subscription on %s: %v", b.channel, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (b *Bridge) consume(ctx context.Context, deliver func([]byte)) error {
	sub := b.rc.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			var frame bridgeFrame
			if err := sonic.UnmarshalString(msg.Payload, &frame); err != nil {
				b.logger.Errorf("decode bridge frame: %v", err)
				continue
			}
			if frame.Origin == b.instanceID {
				continue
			}
			deliver(frame.Data)
		}
	}
}
