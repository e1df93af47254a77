package rpcagg

import (
	"fmt"

	"github.com/bft-labs/rpcagg/pkg/batch"
	"github.com/bft-labs/rpcagg/pkg/future"
	"github.com/bft-labs/rpcagg/pkg/lifecycle"
	"github.com/bft-labs/rpcagg/pkg/log"
)

// Version information for the rpcagg package.
const (
	Version              = "1.0.0"
	MinCompatibleVersion = "1.0.0"
)

type moduleVersion struct {
	version    string
	minVersion string
}

func moduleVersions() map[string]moduleVersion {
	return map[string]moduleVersion{
		"batch":     {batch.Version, batch.MinCompatibleVersion},
		"future":    {future.Version, future.MinCompatibleVersion},
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
		"log":       {log.Version, log.MinCompatibleVersion},
	}
}

// ModuleVersions returns the version of every sub-package.
func ModuleVersions() map[string]string {
	out := map[string]string{"rpcagg": Version}
	for name, m := range moduleVersions() {
		out[name] = m.version
	}
	return out
}

// validateModuleVersions checks that all module versions are compatible.
func validateModuleVersions() error {
	for name, m := range moduleVersions() {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible reports whether version >= minVersion. Versions are
// "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
