// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DeviceHandle provides GPU device access from the host application.
//
// The host graph implements DeviceHandle and hands it to effect nodes so
// their pipelines live on the same device as the rest of the graph. A handle
// whose implementation also exposes HalDevice() and HalQueue() can be
// adopted with DeviceFromProvider.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider.
type DeviceHandle = gpucontext.DeviceProvider

// NullDeviceHandle is a DeviceHandle without a device.
type NullDeviceHandle struct{}

// Device returns nil for the null device.
func (NullDeviceHandle) Device() gpucontext.Device { return nil }

// Queue returns nil for the null device.
func (NullDeviceHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the null device.
func (NullDeviceHandle) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns undefined format for the null device.
func (NullDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

var _ DeviceHandle = NullDeviceHandle{}

var (
	// ErrBackendUnavailable is returned by OpenDevice when the backend was
	// not registered. Backends register by being imported, for example
	// _ "github.com/gogpu/wgpu/hal/vulkan".
	ErrBackendUnavailable = errors.New("render: backend not available")

	// ErrNoAdapter is returned when an instance exposes no adapters.
	ErrNoAdapter = errors.New("render: no GPU adapters found")

	// ErrNotHAL is returned by DeviceFromProvider for providers that do not
	// expose hal types.
	ErrNotHAL = errors.New("render: provider does not expose HAL types")
)

// Device is an open hal device and its queue.
type Device struct {
	Device hal.Device
	Queue  hal.Queue

	// Name is the adapter name, empty for adopted devices.
	Name string

	instance hal.Instance
	owned    bool
}

// OpenDevice creates an instance of backend and opens its preferred adapter:
// the first discrete or integrated GPU, otherwise the first adapter.
func OpenDevice(backend gputypes.Backend, opts ...Option) (*Device, error) {
	b, ok := hal.GetBackend(backend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, backend)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("render: create instance: %w", err)
	}
	d, err := OpenInstance(instance, opts...)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	return d, nil
}

// OpenInstance opens the preferred adapter of an existing instance. The
// returned Device takes ownership of instance.
func OpenInstance(instance hal.Instance, opts ...Option) (*Device, error) {
	cfg := newConfig(opts)

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("render: open device: %w", err)
	}
	cfg.logger.Info("render: device opened", slog.String("adapter", selected.Info.Name))
	return &Device{
		Device:   openDev.Device,
		Queue:    openDev.Queue,
		Name:     selected.Info.Name,
		instance: instance,
		owned:    true,
	}, nil
}

// DeviceFromProvider adopts the hal device of a host provider. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue. Close does not destroy an adopted device.
func DeviceFromProvider(provider any) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNotHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNotHAL)
	}
	return &Device{Device: device, Queue: queue}, nil
}

// Close destroys the device and instance if d opened them.
func (d *Device) Close() {
	if !d.owned {
		return
	}
	if d.Device != nil {
		d.Device.Destroy()
		d.Device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.owned = false
}
