package telemetry

import (
	"context"
	"encoding/json"
)

// HostInfo is information that does not change while the agent runs.
type HostInfo struct {
	Hostname   string `json:"hostname"`
	Type       string `json:"type"`
	Platform   string `json:"platform"`
	Arch       string `json:"arch"`
	Release    string `json:"release"`
	MACAddress string `json:"macAddress,omitempty"`
}

// CPU describes one logical processor.
type CPU struct {
	Model string  `json:"model"`
	Speed float64 `json:"speed"`
	Cores int32   `json:"cores"`
}

// DiskUsage describes one mounted filesystem.
type DiskUsage struct {
	Filesystem  string  `json:"filesystem"`
	MountPoint  string  `json:"mountpoint"`
	Type        string  `json:"fstype"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

// Snapshot is one telemetry report. Uptime is in seconds, memory in bytes
// and Timestamp in Unix milliseconds.
type Snapshot struct {
	HostInfo

	Uptime    uint64      `json:"uptime"`
	LoadAvg   [3]float64  `json:"loadavg"`
	TotalMem  uint64      `json:"totalmem"`
	FreeMem   uint64      `json:"freemem"`
	CPUs      []CPU       `json:"cpus"`
	Disk      []DiskUsage `json:"disk,omitempty"`
	Timestamp int64       `json:"timestamp"`

	// Errors lists the parts that could not be collected.
	Errors []string `json:"errors,omitempty"`
}

// Marshal encodes the snapshot as JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Marshal encodes the host info as JSON.
func (h HostInfo) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// Collector gathers host telemetry. Calls may block on the operating
// system and should not be made on the connection event loop.
type Collector interface {
	HostInfo(ctx context.Context) (HostInfo, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}
