package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidDeviceStatus is returned when a command is issued while the
// appliance is not in a state that accepts it. It is not retriable: the
// caller must re-check state before trying again.
var ErrInvalidDeviceStatus = errors.New("invalid device status")

// deviceCategory identifies the appliance family on the gateway API.
const deviceCategory = "robotKing"

// auxPollInterval throttles low-priority auxiliary features, passed for
// both protocol generations.
const auxPollInterval = 5 * time.Minute

// Command is one control group/command pair, optionally carrying a
// payload value.
type Command struct {
	Group   string
	Command string
	Value   any
}

// Session is the transport collaborator: one asynchronous poll operation
// and one command dispatch. Authentication, retries and backoff live
// behind it; errors propagate to the caller untouched.
type Session interface {
	// RequestPayload fetches the current raw status document. A nil
	// payload with a nil error means the gateway had nothing new.
	RequestPayload(ctx context.Context, category string, auxIntervalV1, auxIntervalV2 time.Duration, richQuery bool) (Payload, error)
	// SendCommand dispatches one control command.
	SendCommand(ctx context.Context, cmd Command) error
}

// FeatureSink receives normalized feature updates for external readers.
type FeatureSink interface {
	UpdateFeature(name, value string)
}

// Controller represents one physical appliance: it mediates poll and
// command operations and gates hardware-unsafe commands behind the
// standby flag. Callers must serialize calls per controller; no internal
// locking is provided.
type Controller struct {
	session Session
	info    DeviceInfo
	sink    FeatureSink
	logger  *zap.Logger

	standby bool
	status  *Status
}

// NewController creates a controller for one appliance. The appliance is
// assumed to start in standby; only a successful WakeUp clears the flag.
func NewController(session Session, info DeviceInfo, sink FeatureSink, logger *zap.Logger) *Controller {
	c := &Controller{
		session: session,
		info:    info,
		sink:    sink,
		logger:  logger.Named("controller"),
		standby: true,
	}
	c.status = newStatus(info, sink, c.logger, nil)
	return c
}

// Status returns the most recent snapshot. Never nil: a payload-less
// snapshot stands in until the first successful poll.
func (c *Controller) Status() *Status { return c.status }

// StatusView returns a value copy of the derived fields of the most
// recent snapshot.
func (c *Controller) StatusView() StatusView { return c.status.View() }

// Standby reports whether the appliance still needs a wake-up command.
func (c *Controller) Standby() bool { return c.standby }

// Poll requests the current raw payload and derives a fresh snapshot
// from it. A nil snapshot with a nil error means the gateway had nothing
// new; the stored snapshot is left untouched.
func (c *Controller) Poll(ctx context.Context) (*Status, error) {
	payload, err := c.session.RequestPayload(ctx, deviceCategory, auxPollInterval, auxPollInterval, true)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		c.logger.Debug("Poll returned no payload")
		return nil, nil
	}

	c.logger.Debug("Poll payload received", zap.Any("payload", map[string]any(payload)))
	c.status = newStatus(c.info, c.sink, c.logger, payload)
	c.status.UpdateFeatures()
	return c.status, nil
}

// ResetStatus discards the stored snapshot and replaces it with a
// payload-less one so every derived field reads as off/none. Used to
// present a deterministic idle state without waiting for a poll.
func (c *Controller) ResetStatus() *Status {
	c.status = newStatus(c.info, c.sink, c.logger, nil)
	return c.status
}

// WakeUp sends the wake command to an appliance in standby and eagerly
// patches the stored snapshot's run state so readers do not see a stale
// "off" between dispatch and the next poll.
func (c *Controller) WakeUp(ctx context.Context) error {
	if !c.standby {
		return fmt.Errorf("wake up: %w", ErrInvalidDeviceStatus)
	}

	cmd, err := c.wakeUpCommand()
	if err != nil {
		return err
	}
	if err := c.session.SendCommand(ctx, cmd); err != nil {
		return err
	}

	c.standby = false
	c.status.UpdateStatus(runStateKeys[0], c.runStateCode(stateInitial))
	c.logger.Info("Appliance woken up",
		zap.String("group", cmd.Group),
		zap.String("command", cmd.Command))
	return nil
}

// wakeUpCommand picks the first wake command pair the device metadata
// marks as supported.
func (c *Controller) wakeUpCommand() (Command, error) {
	for _, cmd := range wakeUpCommands {
		if c.info.SupportsCommand(cmd.Group, cmd.Command) {
			return cmd, nil
		}
	}
	return Command{}, fmt.Errorf("device metadata supports no wake-up command")
}

// runStateCode reverse-resolves a run-state label to the enum code the
// raw payload carries, falling back to the label itself when the model
// has no code for it.
func (c *Controller) runStateCode(label string) any {
	if code, ok := c.info.EnumCode(runStateKeys[0], label); ok {
		return code
	}
	return label
}
