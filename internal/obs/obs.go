// Package obs wires structured logging for the runtime core. Every
// subsystem gets its own *logrus.Entry rather than reaching for the global
// logger, so fields (store_id, module, function_index) stay consistent and
// callers can redirect a single subsystem's output independently.
package obs

import "github.com/sirupsen/logrus"

// Logger is the package-wide base logger. Embedders may replace it wholesale
// (e.g. to route through their own logrus instance) before constructing an
// Engine; subsystem loggers derived after that point pick up the change.
var Logger = logrus.StandardLogger()

// For returns a subsystem-scoped entry, e.g. obs.For("trap"), obs.For("store").
func For(subsystem string) *logrus.Entry {
	return Logger.WithField("subsystem", subsystem)
}
