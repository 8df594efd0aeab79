// Package bridge forwards traffic between one CAN bus session and an MQTT
// broker according to the configured rule set.
package bridge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yiweisong/ace-can/canbus"
	"github.com/yiweisong/ace-can/internal/config"
	"github.com/yiweisong/ace-can/internal/mqtt"
)

// Bridge owns the CAN session and the MQTT client and routes between them.
type Bridge struct {
	cfg *config.Config
	log *zap.Logger

	// mu guards the rule maps and the two endpoints. The endpoints are
	// written during startup and read from handler goroutines.
	mu      sync.RWMutex
	bus     *canbus.Bus
	mq      *mqtt.Client
	byID    map[uint32]config.Rule
	byTopic map[string]config.Rule
}

// New builds a bridge for cfg. Nothing is opened until Run.
func New(cfg *config.Config, log *zap.Logger) (*Bridge, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bridge{cfg: cfg, log: log}
	if err := b.rebuildRules(cfg.Can2mqtt, cfg.Mqtt2can); err != nil {
		return nil, err
	}
	return b, nil
}

// Run opens both sides, forwards traffic until ctx is cancelled, then shuts
// down. The CAN session and the broker connection are brought up in
// parallel; either failing aborts the start. Forwarding callbacks are
// registered only once both endpoints exist, so a handler never fires
// against a half-started bridge.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(b.startCAN)
	g.Go(b.startMQTT)
	if err := g.Wait(); err != nil {
		b.shutdown()
		return err
	}
	if err := b.attachRoutes(); err != nil {
		b.shutdown()
		return err
	}
	b.log.Info("bridge running",
		zap.String("bus", b.cfg.Bus),
		zap.Int("channel", b.cfg.Channel),
		zap.Int("direction", b.cfg.Direction))

	<-gctx.Done()
	b.shutdown()
	return nil
}

func (b *Bridge) startCAN() error {
	bus, err := canbus.New(b.cfg.Channel, b.cfg.Bus, b.cfg.Bitrate,
		canbus.WithLogger(b.log.Named("canbus")))
	if err != nil {
		return fmt.Errorf("open can session: %w", err)
	}
	b.mu.Lock()
	b.bus = bus
	b.mu.Unlock()

	return bus.OnError(func(e *canbus.Error) {
		b.log.Warn("can bus error",
			zap.Uint32("code", e.Code), zap.String("message", e.Message))
	})
}

func (b *Bridge) startMQTT() error {
	mq := mqtt.NewClient(b.cfg.Broker, b.cfg.ClientID, b.log.Named("mqtt"))
	b.mu.Lock()
	b.mq = mq
	b.mu.Unlock()
	return mq.Connect()
}

// attachRoutes wires the forwarding callbacks for the configured direction.
// Both endpoints are set by the time this runs.
func (b *Bridge) attachRoutes() error {
	if b.cfg.Direction != config.DirectionMQToCan {
		if err := b.bus.OnMessage(b.handleFrame); err != nil {
			return err
		}
	}
	if b.cfg.Direction != config.DirectionCanToMQ {
		for _, r := range b.cfg.Mqtt2can {
			if err := b.mq.Subscribe(r.Topic, b.handleMessage); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleFrame publishes a received frame on the topic its rule names.
// Frames with no rule, or arriving before the broker side is up, are
// dropped.
func (b *Bridge) handleFrame(f canbus.Frame) {
	b.mu.RLock()
	mq := b.mq
	rule, ok := b.byID[f.ID]
	b.mu.RUnlock()
	if mq == nil {
		b.log.Debug("frame before broker connection", zap.Uint32("id", f.ID))
		return
	}
	if !ok {
		b.log.Debug("no rule for frame", zap.Uint32("id", f.ID))
		return
	}
	payload, err := encodeFrame(f)
	if err != nil {
		b.log.Warn("encode frame", zap.Uint32("id", f.ID), zap.Error(err))
		return
	}
	if err := mq.Publish(rule.Topic, payload); err != nil {
		b.log.Warn("publish frame", zap.String("topic", rule.Topic), zap.Error(err))
	}
}

// handleMessage transmits a subscribed MQTT message as a CAN frame.
// Messages on topics with no rule are dropped; that covers subscriptions
// that outlive a reload. A retained message delivered before the CAN side
// is up is dropped too.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	b.mu.RLock()
	bus := b.bus
	rule, ok := b.byTopic[topic]
	b.mu.RUnlock()
	if bus == nil {
		b.log.Debug("message before can session", zap.String("topic", topic))
		return
	}
	if !ok {
		b.log.Debug("no rule for topic", zap.String("topic", topic))
		return
	}
	id, err := rule.ID()
	if err != nil {
		b.log.Warn("rule id", zap.String("topic", topic), zap.Error(err))
		return
	}
	f, err := decodeFrame(id, payload)
	if err != nil {
		b.log.Warn("decode message", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := bus.Send(f); err != nil {
		b.log.Warn("send frame", zap.Uint32("id", f.ID), zap.Error(err))
	}
}

// Reload replaces the rule set from the configuration at path. Broker and
// bus parameters are not reloadable; only the rules change. New mqtt2can
// topics are subscribed, removed ones keep arriving until restart and are
// dropped by the lookup miss.
func (b *Bridge) Reload(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	b.mu.RLock()
	mq := b.mq
	known := make(map[string]bool, len(b.byTopic))
	for t := range b.byTopic {
		known[t] = true
	}
	b.mu.RUnlock()

	if err := b.rebuildRules(cfg.Can2mqtt, cfg.Mqtt2can); err != nil {
		return err
	}
	if mq != nil && b.cfg.Direction != config.DirectionCanToMQ {
		for _, r := range cfg.Mqtt2can {
			if known[r.Topic] {
				continue
			}
			if err := mq.Subscribe(r.Topic, b.handleMessage); err != nil {
				return err
			}
		}
	}
	b.log.Info("rules reloaded",
		zap.Int("can2mqtt", len(cfg.Can2mqtt)), zap.Int("mqtt2can", len(cfg.Mqtt2can)))
	return nil
}

// rebuildRules swaps in fresh lookup maps built from the rule lists.
func (b *Bridge) rebuildRules(can2mqtt, mqtt2can []config.Rule) error {
	byID := make(map[uint32]config.Rule, len(can2mqtt))
	for _, r := range can2mqtt {
		id, err := r.ID()
		if err != nil {
			return err
		}
		byID[id] = r
	}
	byTopic := make(map[string]config.Rule, len(mqtt2can))
	for _, r := range mqtt2can {
		byTopic[r.Topic] = r
	}

	b.mu.Lock()
	b.byID = byID
	b.byTopic = byTopic
	b.mu.Unlock()
	return nil
}

func (b *Bridge) shutdown() {
	b.mu.RLock()
	bus, mq := b.bus, b.mq
	b.mu.RUnlock()

	if bus != nil {
		if err := bus.Close(); err != nil {
			b.log.Warn("close can session", zap.Error(err))
		}
	}
	if mq != nil {
		mq.Disconnect()
	}
	b.log.Info("bridge stopped")
}
