package sensor

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	"codeberg.org/mutker/smfd/internal/errors"
)

const (
	DefaultSmartctl = "smartctl"

	// smartctl exit status bits 0 and 1 mean the command line could not be
	// parsed or the device could not be opened. The remaining bits describe
	// disk health and the output is still valid.
	smartctlFatalBits = 0x03
)

// CommandRunner runs a command and returns its standard output and exit
// status. err is non-nil only when the command could not be run at all.
type CommandRunner func(ctx context.Context, name string, args ...string) (out []byte, status int, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode(), nil
	}

	return out, 0, err
}

// SmartOptions selects how smartctl is invoked.
type SmartOptions struct {
	Smartctl string
	Runner   CommandRunner
}

// SmartDisk reads a disk temperature through smartctl's JSON output.
type SmartDisk struct {
	device   string
	smartctl string
	run      CommandRunner
}

type smartctlOutput struct {
	Smartctl struct {
		ExitStatus int `json:"exit_status"`
		Messages   []struct {
			String   string `json:"string"`
			Severity string `json:"severity"`
		} `json:"messages"`
	} `json:"smartctl"`
	Temperature *struct {
		Current *int `json:"current"`
	} `json:"temperature"`
}

// OpenSmartDisks checks that every device exists and that smartctl can be
// found, then returns one source per device.
func OpenSmartDisks(devices []string, opts SmartOptions) ([]*SmartDisk, error) {
	errFactory := errors.New()

	if opts.Smartctl == "" {
		opts.Smartctl = DefaultSmartctl
	}
	if opts.Runner == nil {
		path, err := exec.LookPath(opts.Smartctl)
		if err != nil {
			return nil, errFactory.WithData(ErrSmartctlNotFound, struct {
				Smartctl string
				Error    string
			}{
				Smartctl: opts.Smartctl,
				Error:    err.Error(),
			})
		}
		opts.Smartctl = path
		opts.Runner = execRunner
	}

	disks := make([]*SmartDisk, 0, len(devices))
	for _, dev := range devices {
		if _, err := os.Stat(dev); err != nil {
			return nil, errFactory.WithData(ErrDiskNotFound, struct {
				Device string
				Error  string
			}{
				Device: dev,
				Error:  err.Error(),
			})
		}
		disks = append(disks, &SmartDisk{device: dev, smartctl: opts.Smartctl, run: opts.Runner})
	}

	return disks, nil
}

func (d *SmartDisk) Name() string {
	return d.device
}

func (d *SmartDisk) Read(ctx context.Context) (int, error) {
	errFactory := errors.New()

	out, status, err := d.run(ctx, d.smartctl, "-j", "-A", d.device)
	if err != nil {
		return 0, errFactory.WithData(ErrSmartctl, struct {
			Device string
			Error  string
		}{
			Device: d.device,
			Error:  err.Error(),
		})
	}

	var result smartctlOutput
	if err := json.Unmarshal(out, &result); err != nil {
		if status&smartctlFatalBits != 0 {
			return 0, errFactory.WithData(ErrSmartctl, struct {
				Device string
				Status int
			}{
				Device: d.device,
				Status: status,
			})
		}
		return 0, errFactory.WithData(ErrSmartOutput, struct {
			Device string
			Error  string
		}{
			Device: d.device,
			Error:  err.Error(),
		})
	}

	if status&smartctlFatalBits != 0 {
		msgs := make([]string, 0, len(result.Smartctl.Messages))
		for _, m := range result.Smartctl.Messages {
			msgs = append(msgs, m.String)
		}
		return 0, errFactory.WithData(ErrSmartctl, struct {
			Device  string
			Status  int
			Message string
		}{
			Device:  d.device,
			Status:  status,
			Message: strings.Join(msgs, "; "),
		})
	}

	if result.Temperature == nil || result.Temperature.Current == nil {
		return 0, errFactory.WithData(ErrNoTemperature, struct {
			Device string
		}{
			Device: d.device,
		})
	}

	return *result.Temperature.Current, nil
}

func (*SmartDisk) Close() error {
	return nil
}
