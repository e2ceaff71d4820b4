package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/rpawatch/version"
)

type memoryStats struct {
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	Percent float64 `json:"percent"`
}

// getMemoryStats reads host memory; nil when unavailable
func getMemoryStats() *memoryStats {
	v, err := mem.VirtualMemory()
	if err != nil {
		return nil
	}
	const gb = 1 << 30
	return &memoryStats{
		TotalGB: float64(v.Total) / gb,
		UsedGB:  float64(v.Total-v.Available) / gb,
		Percent: v.UsedPercent,
	}
}

// HandleHealth reports liveness, build info and host memory
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()

	health := map[string]interface{}{
		"status":     "ok",
		"version":    versionInfo.Version,
		"commit":     versionInfo.CommitHash,
		"build_time": versionInfo.BuildTime,
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	}
	if m := getMemoryStats(); m != nil {
		health["memory"] = m
	}
	if s.deps.Feed != nil {
		health["feed_connected"] = s.deps.Feed.Connected()
	}

	writeJSON(w, http.StatusOK, health)
}
