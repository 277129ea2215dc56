package scan

import (
	"github.com/jamesainslie/cardview/pkg/cardview/blockdev"
	"github.com/jamesainslie/cardview/pkg/cardview/fatvol"
	"github.com/jamesainslie/cardview/pkg/cardview/logging"
	"github.com/jamesainslie/cardview/pkg/cardview/types"
)

// DeviceDriver is the production Driver: block-level access through
// blockdev, FAT parsing through fatvol.
type DeviceDriver struct{}

// NewDeviceDriver creates the production driver.
func NewDeviceDriver() *DeviceDriver {
	return &DeviceDriver{}
}

// Attach probes for an attached card by opening and sizing the device.
func (d *DeviceDriver) Attach(bus *blockdev.Bus) (Card, error) {
	dev, err := bus.Attach()
	if err != nil {
		return nil, err
	}
	logging.Get("driver").Debug("card attached",
		"path", bus.Path(), "capacity", dev.Capacity())
	return &deviceCard{dev: dev}, nil
}

type deviceCard struct {
	dev *blockdev.Device
}

func (c *deviceCard) Mount() (Volume, error) {
	vol, err := fatvol.Mount(c.dev)
	if err != nil {
		return nil, err
	}
	if label := vol.Label(); label != "" {
		logging.Get("driver").Debug("volume mounted", "label", label)
	}
	return &deviceVolume{card: c, vol: vol}, nil
}

func (c *deviceCard) Detach() *blockdev.Bus {
	return c.dev.Release()
}

type deviceVolume struct {
	card *deviceCard
	vol  *fatvol.Volume
}

func (v *deviceVolume) OpenRoot() (Directory, error) {
	dir, err := v.vol.OpenRoot()
	if err != nil {
		return nil, err
	}
	return &deviceDirectory{dir: dir}, nil
}

func (v *deviceVolume) Unmount() Card {
	return v.card
}

type deviceDirectory struct {
	dir *fatvol.RootDir
}

func (d *deviceDirectory) Read(limit int) ([]types.FileEntry, int, error) {
	raw, skipped, err := d.dir.ReadAll(limit)
	entries := make([]types.FileEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, types.FileEntry{
			Name:  e.Name,
			Size:  e.Size,
			IsDir: e.IsDir,
		})
	}
	return entries, skipped, err
}

func (d *deviceDirectory) Close() error {
	return d.dir.Close()
}
