package metrics

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"time"
)

var startedAt = time.Now()

// SysHealth is a point-in-time snapshot of the process and its data directory.
type SysHealth struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Goroutines    int    `json:"goroutines"`
	AllocMB       uint64 `json:"allocMB"`
	SysMB         uint64 `json:"sysMB"`
	NumGC         uint32 `json:"numGC"`
	DataFiles     int    `json:"dataFiles"`
	DataDiskBytes int64  `json:"dataDiskBytes"`
	DataDiskSize  string `json:"dataDiskSize"`
}

// GetSysHealth collects runtime stats and the size of dataPath. An unreadable
// data directory degrades the status instead of failing.
func GetSysHealth(dataPath string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h := SysHealth{
		Status:     "ok",
		Uptime:     time.Since(startedAt).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		AllocMB:    m.Alloc / 1024 / 1024,
		SysMB:      m.Sys / 1024 / 1024,
		NumGC:      m.NumGC,
	}

	files, size, err := dirUsage(dataPath)
	if err != nil {
		h.Status = "degraded"
	}
	h.DataFiles = files
	h.DataDiskBytes = size
	h.DataDiskSize = formatBytes(size)
	return h
}

func dirUsage(path string) (int, int64, error) {
	var files int
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
