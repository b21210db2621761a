package telemetry

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// SystemCollector reads telemetry from the local host.
type SystemCollector struct {
	// Now stamps snapshots. Defaults to time.Now.
	Now func() time.Time

	// PhysicalDisksOnly limits disk usage to physical partitions.
	PhysicalDisksOnly bool

	macOnce sync.Once
	mac     string
	macErr  error
}

var _ Collector = (*SystemCollector)(nil)

// NewSystemCollector returns a collector reporting physical disks only.
func NewSystemCollector() *SystemCollector {
	return &SystemCollector{Now: time.Now, PhysicalDisksOnly: true}
}

// MACAddress returns the hardware address of the primary network
// interface. The lookup runs once.
func (c *SystemCollector) MACAddress(ctx context.Context) (string, error) {
	c.macOnce.Do(func() {
		ifaces, err := net.InterfacesWithContext(ctx)
		if err != nil {
			c.macErr = fmt.Errorf("list interfaces: %w", err)
			return
		}
		c.mac = PrimaryMAC(ifaces)
		if c.mac == "" {
			c.macErr = fmt.Errorf("no interface with a hardware address")
		}
	})
	return c.mac, c.macErr
}

// HostInfo implements Collector.
func (c *SystemCollector) HostInfo(ctx context.Context) (HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{}, fmt.Errorf("host info: %w", err)
	}
	mac, _ := c.MACAddress(ctx)

	arch := info.KernelArch
	if arch == "" {
		arch = runtime.GOARCH
	}
	return HostInfo{
		Hostname:   info.Hostname,
		Type:       info.OS,
		Platform:   info.Platform,
		Arch:       arch,
		Release:    info.KernelVersion,
		MACAddress: mac,
	}, nil
}

// Snapshot implements Collector. Only a host info failure is an error;
// other failures are listed in Snapshot.Errors.
func (c *SystemCollector) Snapshot(ctx context.Context) (Snapshot, error) {
	hi, err := c.HostInfo(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	snap := Snapshot{HostInfo: hi, Timestamp: now().UnixMilli()}

	if up, err := host.UptimeWithContext(ctx); err == nil {
		snap.Uptime = up
	} else {
		snap.Errors = append(snap.Errors, "uptime: "+err.Error())
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.LoadAvg = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	} else {
		snap.Errors = append(snap.Errors, "loadavg: "+err.Error())
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.TotalMem = vm.Total
		snap.FreeMem = vm.Available
	} else {
		snap.Errors = append(snap.Errors, "memory: "+err.Error())
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil {
		for _, ci := range infos {
			snap.CPUs = append(snap.CPUs, CPU{
				Model: strings.TrimSpace(ci.ModelName),
				Speed: ci.Mhz,
				Cores: ci.Cores,
			})
		}
	} else {
		snap.Errors = append(snap.Errors, "cpus: "+err.Error())
	}

	disks, err := c.disks(ctx)
	if err != nil {
		snap.Errors = append(snap.Errors, "disk: "+err.Error())
	}
	snap.Disk = disks

	return snap, nil
}

func (c *SystemCollector) disks(ctx context.Context) ([]DiskUsage, error) {
	parts, err := disk.PartitionsWithContext(ctx, !c.PhysicalDisksOnly)
	if err != nil {
		return nil, err
	}
	var out []DiskUsage
	seen := make(map[string]bool)
	for _, p := range parts {
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true

		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || u.Total == 0 {
			continue
		}
		out = append(out, DiskUsage{
			Filesystem:  p.Device,
			MountPoint:  p.Mountpoint,
			Type:        p.Fstype,
			Total:       u.Total,
			Used:        u.Used,
			Free:        u.Free,
			UsedPercent: u.UsedPercent,
		})
	}
	return out, nil
}

// PrimaryMAC picks the hardware address of the first interface that is not
// a loopback and has a non-zero address, preferring interfaces that are up.
func PrimaryMAC(ifaces []net.InterfaceStat) string {
	var fallback string
	for _, iface := range ifaces {
		if hasFlag(iface.Flags, "loopback") {
			continue
		}
		addr := strings.ToLower(iface.HardwareAddr)
		if addr == "" || addr == "00:00:00:00:00:00" {
			continue
		}
		if hasFlag(iface.Flags, "up") {
			return addr
		}
		if fallback == "" {
			fallback = addr
		}
	}
	return fallback
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
