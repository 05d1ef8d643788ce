// Package commands implements the pending-command queue the agents poll:
// operators enqueue one command per device, the next poll delivers and
// consumes it, and every dispatch leaves a history row.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/samber/lo"

	"github.com/bridgefleet/bridgefleet/pkg/command"
	"github.com/bridgefleet/bridgefleet/pkg/storage"
	"github.com/bridgefleet/bridgefleet/pkg/util"
	"github.com/bridgefleet/bridgefleet/pkg/util/grpcutil"
)

type CommandService struct {
	logger *slog.Logger

	pendingStore storage.KeyValue[PendingCommand]
	historyStore storage.KeyValue[DispatchRecord]
	deviceStore  storage.KeyValue[Device]

	// mu serializes enqueue/deliver for a consistent pending slot; poll
	// volume is one request per device per interval, so a single lock
	// is fine.
	mu sync.Mutex

	services.Service
}

func NewCommandService(
	logger *slog.Logger,
	pendingStore storage.KeyValue[PendingCommand],
	historyStore storage.KeyValue[DispatchRecord],
	deviceStore storage.KeyValue[Device],
) *CommandService {
	c := &CommandService{
		logger:       logger,
		pendingStore: pendingStore,
		historyStore: historyStore,
		deviceStore:  deviceStore,
	}
	c.Service = services.NewBasicService(nil, c.running, nil)
	return c
}

func (c *CommandService) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Enqueue queues cmd for the device, replacing any command already waiting.
// Only names from the closed command set are accepted.
func (c *CommandService) Enqueue(ctx context.Context, deviceID, cmd string) (DispatchRecord, error) {
	if !command.ParseName(cmd).Known() {
		return DispatchRecord{}, fmt.Errorf("unknown command %q", cmd)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, err := c.pendingStore.Get(ctx, deviceID); err == nil {
		// Mark the replaced command's history row so operators can see
		// it never reached the device.
		if rec, err := c.historyStore.Get(ctx, prev.ID); err == nil {
			rec.Status = DispatchReplaced
			if err := c.historyStore.Put(ctx, rec.ID, rec); err != nil {
				c.logger.With("err", err).Warn("failed to mark replaced dispatch")
			}
		}
	}

	pending := PendingCommand{
		ID:         util.NewUUID(),
		DeviceID:   deviceID,
		Command:    cmd,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := c.pendingStore.Put(ctx, deviceID, pending); err != nil {
		return DispatchRecord{}, err
	}

	rec := DispatchRecord{
		ID:         pending.ID,
		DeviceID:   deviceID,
		Command:    cmd,
		Status:     DispatchPending,
		EnqueuedAt: pending.EnqueuedAt,
	}
	if err := c.historyStore.Put(ctx, rec.ID, rec); err != nil {
		return DispatchRecord{}, err
	}
	c.logger.With("device", deviceID).With("command", cmd).Info("command enqueued")
	return rec, nil
}

// NextForDevice consumes and returns the pending command for the device, if
// any. It also maintains the device registry from poll traffic.
func (c *CommandService) NextForDevice(ctx context.Context, deviceID string) (PendingCommand, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.touchDevice(ctx, deviceID)

	pending, err := c.pendingStore.Get(ctx, deviceID)
	if grpcutil.IsErrorNotFound(err) {
		return PendingCommand{}, false, nil
	} else if err != nil {
		return PendingCommand{}, false, err
	}

	if err := c.pendingStore.Delete(ctx, deviceID); err != nil {
		return PendingCommand{}, false, err
	}
	if rec, err := c.historyStore.Get(ctx, pending.ID); err == nil {
		now := time.Now().UTC()
		rec.Status = DispatchDelivered
		rec.DeliveredAt = &now
		if err := c.historyStore.Put(ctx, rec.ID, rec); err != nil {
			c.logger.With("err", err).Warn("failed to mark delivered dispatch")
		}
	}
	c.logger.With("device", deviceID).With("command", pending.Command).Info("command delivered")
	return pending, true, nil
}

func (c *CommandService) touchDevice(ctx context.Context, deviceID string) {
	now := time.Now().UTC()
	dev, err := c.deviceStore.Get(ctx, deviceID)
	if grpcutil.IsErrorNotFound(err) {
		dev = Device{DeviceID: deviceID, FirstSeen: now}
	} else if err != nil {
		c.logger.With("err", err).Warn("failed to load device record")
		return
	}
	dev.LastSeen = now
	dev.PollCount++
	if err := c.deviceStore.Put(ctx, deviceID, dev); err != nil {
		c.logger.With("err", err).Warn("failed to update device record")
	}
}

// Devices lists known devices with their pending command, if any.
func (c *CommandService) Devices(ctx context.Context) ([]DeviceStatus, error) {
	devs, err := c.deviceStore.List(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.With("numDevices", len(devs)).Debug("found devices")
	statuses := lo.Map(devs, func(d Device, _ int) DeviceStatus {
		return DeviceStatus{Device: d}
	})
	for idx, st := range statuses {
		if p, err := c.pendingStore.Get(ctx, st.DeviceID); err == nil {
			statuses[idx].Pending = &p
		}
	}
	return statuses, nil
}

// History lists all dispatch records.
func (c *CommandService) History(ctx context.Context) ([]DispatchRecord, error) {
	return c.historyStore.List(ctx)
}
