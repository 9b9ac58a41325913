package bridge

import "os"

// EnvDebug selects diagnostic verbosity: "all" logs both host and engine
// events (and routes engine stdio to the process streams), "host" logs
// only native-side events, "none" or unset logs nothing.
const EnvDebug = "FJORD_DEBUG"

type debugMode int

const (
	debugOff debugMode = iota
	debugHost
	debugAll
)

func debugModeFromEnv() (debugMode, bool) {
	switch os.Getenv(EnvDebug) {
	case "all":
		return debugAll, true
	case "host":
		return debugHost, true
	case "", "none":
		return debugOff, true
	}
	return debugOff, false
}

// hostEvents reports whether native-side events should be logged.
func (m debugMode) hostEvents() bool {
	return m >= debugHost
}

// engineStdio reports whether the engine's stdout/stderr should reach
// the process streams.
func (m debugMode) engineStdio() bool {
	return m == debugAll
}
