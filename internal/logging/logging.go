// Package logging wires up logrus with per-subsystem level overrides for
// the blockchain, processing and websocket subsystems, so one noisy
// subsystem can be turned down without silencing the rest.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/0x-minds/0xpads-listener/internal/config"
)

// Loggers bundles the root logger plus the three subsystem loggers that
// may be tuned independently.
type Loggers struct {
	Root       *logrus.Logger
	Blockchain *logrus.Entry
	Processing *logrus.Entry
	WebSocket  *logrus.Entry
}

// Init configures logrus from cfg and returns the subsystem logger set.
func Init(cfg config.LoggingConfig, environment string) *Loggers {
	root := logrus.New()
	root.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	root.SetLevel(level)

	if environment == "production" {
		root.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		root.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	}

	return &Loggers{
		Root:       root,
		Blockchain: subsystemEntry(root, "blockchain", cfg.BlockchainLevel),
		Processing: subsystemEntry(root, "processing", cfg.ProcessingLevel),
		WebSocket:  subsystemEntry(root, "websocket", cfg.WebSocketLevel),
	}
}

// subsystemEntry returns an Entry tagged with subsystem=name. When an
// override level is configured, a dedicated logger at that level backs the
// entry instead of the shared root logger.
func subsystemEntry(root *logrus.Logger, name, overrideLevel string) *logrus.Entry {
	if overrideLevel == "" {
		return root.WithField("subsystem", name)
	}

	level, err := logrus.ParseLevel(overrideLevel)
	if err != nil {
		return root.WithField("subsystem", name)
	}

	sub := logrus.New()
	sub.SetOutput(root.Out)
	sub.SetFormatter(root.Formatter)
	sub.SetLevel(level)
	return sub.WithField("subsystem", name)
}
