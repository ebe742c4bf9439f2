package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildInfo labels the running server.
type BuildInfo struct {
	Version  string
	Commit   string
	Store    string // memory, pgx or sqlite3
	Narrator string // empty when narration is off
}

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conclave_build_info",
			Help: "Conclave server build and wiring: version, commit, store driver and narrator provider.",
		},
		[]string{"version", "commit", "store", "narrator"},
	)
)

// InitBuildInfo publishes b as the only conclave_build_info series.
func InitBuildInfo(b BuildInfo) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	narr := b.Narrator
	if narr == "" {
		narr = "none"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(b.Version, b.Commit, b.Store, narr).Set(1)
}
