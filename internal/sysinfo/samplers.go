package sysinfo

// Well-known system tag names with built-in samplers. Configuration entries
// using these names get their readings without any custom wiring.
const (
	TagCPULoad    = "System/CPU Load"
	TagMemoryUsed = "System/Memory Used"
	TagDiskUsed   = "System/Disk Used"
	TagUptime     = "System/Uptime"
	TagIPAddress  = "Network/IP Address"
)

// Samplers returns the built-in sampler table. diskPath selects the mount
// point measured by the disk tag, typically "/".
func Samplers(diskPath string) map[string]func() (any, error) {
	if diskPath == "" {
		diskPath = "/"
	}
	return map[string]func() (any, error){
		TagCPULoad: func() (any, error) {
			return CPUPercent()
		},
		TagMemoryUsed: func() (any, error) {
			return MemoryUsedPercent()
		},
		TagDiskUsed: func() (any, error) {
			return DiskUsedPercent(diskPath)
		},
		TagUptime: func() (any, error) {
			up, err := UptimeSeconds()
			return int64(up), err //nolint:gosec // uptime fits int64
		},
		TagIPAddress: func() (any, error) {
			_, ip, err := primaryInterface()
			return ip, err
		},
	}
}
