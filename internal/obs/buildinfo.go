package obs

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Set at link time with -ldflags "-X resturant.app/internal/obs.Version=...".
var (
	Version = "dev"
	Commit  = ""
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "resturant",
			Name:      "build_info",
			Help:      "Build of the running auth service, always 1.",
		},
		[]string{"version", "commit", "go_version"},
	)
	startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "resturant",
		Name:      "start_time_seconds",
		Help:      "Unix time the process started serving.",
	})
)

// InitBuildInfo publishes build_info and start_time_seconds. Safe to call
// repeatedly; only the first call registers the collectors.
func InitBuildInfo() {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo, startTime)
		startTime.Set(float64(time.Now().Unix()))
	})
	buildInfo.WithLabelValues(Version, revision(), runtime.Version()).Set(1)
}

// revision prefers the linker-provided commit and falls back to the VCS
// stamp the go tool embeds.
func revision() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > 12 {
					return s.Value[:12]
				}
				return s.Value
			}
		}
	}
	return "unknown"
}
