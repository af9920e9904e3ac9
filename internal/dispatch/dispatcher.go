package dispatch

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/types"
)

const defaultSendTimeout = 30 * time.Second

// Dispatcher fans a fired alert out to configured destinations and
// records one DeliveryOutcome per attempt. Delivery is best effort: a
// failed attempt is terminal and visible for audit; nothing retries it
// beyond the transport's own bounded retry.
type Dispatcher struct {
	channels    map[types.ChannelType]Channel
	sendTimeout time.Duration
}

func NewDispatcher(channels map[types.ChannelType]Channel) *Dispatcher {
	return &Dispatcher{
		channels:    channels,
		sendTimeout: defaultSendTimeout,
	}
}

// Dispatch attempts delivery to every enabled destination
// independently. One destination's failure never prevents attempts to
// the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.AlertRecord, destinations []types.AlertDestination) []types.DeliveryOutcome {
	msg := Message{Subject: alert.Subject, Body: alert.Message, Level: alert.Level}

	var outcomes []types.DeliveryOutcome
	for _, dest := range destinations {
		if !dest.Enabled {
			continue
		}
		outcomes = append(outcomes, d.attempt(ctx, alert, dest, msg))
	}
	return outcomes
}

func (d *Dispatcher) attempt(ctx context.Context, alert types.AlertRecord, dest types.AlertDestination, msg Message) types.DeliveryOutcome {
	outcome := types.DeliveryOutcome{
		AlertID:       alert.ID,
		DestinationID: dest.ID,
		Status:        types.DeliverySent,
		AttemptedAt:   time.Now(),
	}

	channel, ok := d.channels[dest.Channel]
	if !ok {
		outcome.Status = types.DeliveryFailed
		outcome.Error = fmt.Sprintf("channel %s not configured", dest.Channel)
		klog.Errorf("Cannot deliver alert %s to %s: %s", alert.ID, dest.ID, outcome.Error)
		return outcome
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := channel.Send(sendCtx, dest.Address, msg); err != nil {
		outcome.Status = types.DeliveryFailed
		outcome.Error = err.Error()
		klog.Errorf("Delivery of alert %s to %s (%s) failed: %v", alert.ID, dest.ID, dest.Channel, err)
		return outcome
	}

	klog.Infof("Alert %s delivered to %s via %s", alert.ID, dest.ID, dest.Channel)
	return outcome
}
