package bridge

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/session"
)

// ParseDevices parses "devices -l" output into device records
func ParseDevices(output string) []domain.Device {
	var devices []domain.Device
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		d := domain.Device{Serial: fields[0], Status: fields[1]}
		for _, f := range fields[2:] {
			if model, ok := strings.CutPrefix(f, "model:"); ok {
				d.Model = strings.ReplaceAll(model, "_", " ")
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// ListConnectedDevices enumerates devices known to the bridge
func (inv *Invoker) ListConnectedDevices(ctx context.Context, st *session.State) ([]domain.Device, error) {
	res := inv.Invoke(ctx, st, []string{"devices", "-l"}, Options{SuppressSerial: true, Timeout: 15 * time.Second})
	if !res.Success {
		return nil, res.Err
	}
	return ParseDevices(res.Stdout), nil
}

// RefreshStatus re-reads the device list unless the last check is fresh.
// It selects the pinned serial when set, else the first online device.
// Switching to a different device drops everything learned about the old one.
func (inv *Invoker) RefreshStatus(ctx context.Context, st *session.State, force bool) (domain.DeviceStatus, error) {
	now := time.Now()
	if !force && st.StatusFresh(now) {
		return st.Device, nil
	}

	devices, err := inv.ListConnectedDevices(ctx, st)
	if err != nil {
		return st.Device, err
	}

	selected, found := selectDevice(devices, st.Serial)
	if !found {
		if st.Device.Connected {
			st.HandleDisconnect()
		}
		st.LastStatusCheck = now
		if st.Serial != "" {
			return st.Device, fmt.Errorf("%w: %s", domain.ErrNoDevice, st.Serial)
		}
		return st.Device, domain.ErrNoDevice
	}

	if st.Device.Serial != "" && st.Device.Serial != selected.Serial {
		st.HandleDisconnect()
	}

	name := selected.Model
	if name == "" {
		name = selected.Serial
	}
	st.Device = domain.DeviceStatus{Connected: true, Serial: selected.Serial, DisplayName: name}
	st.LastStatusCheck = now
	return st.Device, nil
}

func selectDevice(devices []domain.Device, serial string) (domain.Device, bool) {
	for _, d := range devices {
		if !d.Online() {
			continue
		}
		if serial == "" || d.Serial == serial {
			return d, true
		}
	}
	return domain.Device{}, false
}
