package chainclient

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/0x-minds/0xpads-listener/internal/config"
	"github.com/0x-minds/0xpads-listener/internal/registry"
)

func testBlockchainConfig(factoryAddress string) config.BlockchainConfig {
	return config.BlockchainConfig{
		WSUrl:                   "ws://localhost:8545",
		ChainID:                 1,
		FactoryAddress:          factoryAddress,
		MaxReconnectionAttempts: 10,
		HeartbeatIntervalS:      30,
	}
}

func testRegistry() *registry.Registry {
	return registry.New()
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
