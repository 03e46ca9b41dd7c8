package cli

import (
	"context"
	"fmt"

	"github.com/eyespy-lab/stimlog/internal/config"
	"github.com/eyespy-lab/stimlog/internal/device"
)

type devicesJSON struct {
	Driver  string   `json:"driver"`
	Devices []string `json:"devices"`
}

// Execute implements the go-flags Commander interface for DevicesCommand.
func (c *DevicesCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if c.Driver != "" {
		cfg.Device.Driver = c.Driver
	}

	drv, err := newDriver(cfg)
	if err != nil {
		return err
	}
	return c.executeWithDriver(context.Background(), cfg, drv)
}

// executeWithDriver lists devices from a provided driver (for testing).
func (c *DevicesCommand) executeWithDriver(ctx context.Context, cfg *config.Config, drv device.Driver) error {
	ids, err := drv.Devices(ctx)
	if err != nil {
		return fmt.Errorf("enumerate %s devices: %w", drv.Name(), err)
	}

	if c.globals != nil && c.globals.JSON {
		if ids == nil {
			ids = []string{}
		}
		return printJSON(devicesJSON{Driver: drv.Name(), Devices: ids})
	}

	if len(ids) == 0 {
		fmt.Printf("No %s devices found\n", drv.Name())
		return nil
	}

	fmt.Printf("%d %s device(s):\n", len(ids), drv.Name())
	for i, id := range ids {
		marker := " "
		if i == cfg.Device.Index {
			marker = "*"
		}
		fmt.Printf("%s [%d] %s\n", marker, i, id)
	}
	return nil
}
