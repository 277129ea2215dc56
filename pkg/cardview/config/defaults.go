package config

import "time"

// Defaults for the appliance. The scan cadence values mirror the fixed
// timing of the storage subsystem: one settle delay at boot so power and
// the network stack stabilize before the first probe, then a constant
// inter-scan interval regardless of outcome.
const (
	// DefaultDevicePath is the device node the scanner probes.
	DefaultDevicePath = "/dev/mmcblk0"

	// DefaultBlockSize is the sector size used for device access.
	DefaultBlockSize = 512

	// DefaultSettleDelay is the one-time delay before the first scan.
	DefaultSettleDelay = 3 * time.Second

	// DefaultInterval is the fixed delay between scan cycles.
	DefaultInterval = 15 * time.Second

	// DefaultListen is the HTTP listen address.
	DefaultListen = ":8080"
)
