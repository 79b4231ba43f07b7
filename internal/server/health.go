package server

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/alertbridge/alertbridge/internal/version"
)

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	MemoryRSSMB   float64 `json:"memory_rss_mb,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       version.Version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}

	// Self stats are best effort; the health check never fails on them.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil {
			resp.MemoryRSSMB = float64(mi.RSS) / 1024 / 1024
		}
		if pct, err := proc.CPUPercent(); err == nil {
			resp.CPUPercent = pct
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
