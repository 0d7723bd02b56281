package sysinfo

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Identity holds the static host facts reported in a node birth message.
type Identity struct {
	Hostname      string
	OS            string
	Platform      string
	KernelVersion string
	BootTime      time.Time
	MACAddress    string
	IPAddress     string
}

// CollectIdentity gathers the static identity of the host. Individual
// readings that fail are left at their zero value; the returned error wraps
// the first failure for logging.
func CollectIdentity() (Identity, error) {
	var firstErr error
	var id Identity

	if hn, err := os.Hostname(); err == nil {
		id.Hostname = hn
	} else {
		firstErr = fmt.Errorf("reading hostname: %w", err)
	}

	if info, err := host.Info(); err == nil {
		id.OS = info.OS
		id.Platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		id.KernelVersion = info.KernelVersion
		id.BootTime = time.Unix(int64(info.BootTime), 0) //nolint:gosec // epoch seconds fit int64
	} else if firstErr == nil {
		firstErr = fmt.Errorf("reading host info: %w", err)
	}

	if mac, ip, err := primaryInterface(); err == nil {
		id.MACAddress = mac
		id.IPAddress = ip
	} else if firstErr == nil {
		firstErr = fmt.Errorf("reading network identity: %w", err)
	}

	return id, firstErr
}

// CPUPercent returns total CPU utilisation since the previous call.
// The first call of a process returns utilisation since boot.
func CPUPercent() (float64, error) {
	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, fmt.Errorf("reading cpu utilisation: %w", err)
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("cpu utilisation unavailable")
	}
	return pcts[0], nil
}

// MemoryUsedPercent returns virtual memory utilisation.
func MemoryUsedPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("reading memory utilisation: %w", err)
	}
	return vm.UsedPercent, nil
}

// DiskUsedPercent returns filesystem utilisation for the given mount path.
func DiskUsedPercent(path string) (float64, error) {
	du, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("reading disk utilisation for %s: %w", path, err)
	}
	return du.UsedPercent, nil
}

// UptimeSeconds returns seconds since boot.
func UptimeSeconds() (uint64, error) {
	up, err := host.Uptime()
	if err != nil {
		return 0, fmt.Errorf("reading uptime: %w", err)
	}
	return up, nil
}

// primaryInterface returns the MAC and first IPv4 address of the first
// non-loopback interface that is up and carries an address.
func primaryInterface() (mac, ip string, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", "", fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil {
				continue
			}
			return iface.HardwareAddr.String(), ipNet.IP.String(), nil
		}
	}
	return "", "", fmt.Errorf("no active non-loopback interface found")
}
