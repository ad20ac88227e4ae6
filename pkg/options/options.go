// Package options holds the option-group contract shared by the per-component
// option packages (llm, milvus, postgres, redis, http, logger).
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join builds a dotted flag-name prefix, e.g. Join("server") + "llm.model"
// gives "server.llm.model". Empty input gives an empty prefix.
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions is implemented by every option group the app command mounts.
type IOptions interface {
	// Validate reports all configuration problems at once.
	Validate() []error

	// AddFlags registers the group's flags, optionally under a prefix.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
