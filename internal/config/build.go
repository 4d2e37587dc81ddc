package config

// Linker-injected build metadata, e.g.
//
//	go build -ldflags "-X farmsat/internal/config.version=1.2.3 \
//	    -X farmsat/internal/config.commit=$(git rev-parse --short HEAD)" ./cmd/enrich
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
