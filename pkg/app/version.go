package app

import (
	"github.com/kart-io/version"
)

// GetVersion returns the git version string for startup logging.
func GetVersion() string {
	return version.Get().GitVersion
}
