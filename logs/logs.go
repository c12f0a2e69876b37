package logs

import logging "github.com/ipfs/go-log/v2"

// SetAllLoggers sets the level of all loggers, keeping the noisy libp2p subsystems quieter.
func SetAllLoggers(level logging.LogLevel) {
	logging.SetAllLoggers(level)
	_ = logging.SetLogLevel("addrutil", "INFO")
	_ = logging.SetLogLevel("swarm2", "WARN")
	_ = logging.SetLogLevel("connmgr", "WARN")
	_ = logging.SetLogLevel("nat", "INFO")
	_ = logging.SetLogLevel("net/identify", "ERROR")
	_ = logging.SetLogLevel("fx", "WARN")
}
