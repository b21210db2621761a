// Package telemetry collects the host information an agent publishes.
//
// SystemCollector reads the running host through gopsutil:
//
//	c := telemetry.NewSystemCollector()
//	info, _ := c.HostInfo(ctx)    // static: hostname, OS, arch, kernel, MAC
//	snap, _ := c.Snapshot(ctx)    // info + uptime, load, memory, cpus, disks
//
// StaticCollector returns fixed values and is meant for tests.
package telemetry
