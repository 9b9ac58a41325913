// Package cluster recovers distributed-launch settings that a
// host-managed launcher may have established before the bridge starts.
//
// The bridge itself never initializes distributed execution; when the
// process was placed by a launcher, Discover picks up the rank and world
// size from the environment once, before Init, so the bootstrap payload
// can hand them into the engine.
package cluster

import (
	"os"
	"strconv"
)

// Settings describes the process's place in a distributed launch.
// The zero value means a standalone single-process run.
type Settings struct {
	Rank      int
	WorldSize int

	// Launched reports whether a launcher placed this process.
	Launched bool
}

// env variable pairs checked in order: fjord's own, then common launcher
// conventions.
var rankVars = [][2]string{
	{"FJORD_RANK", "FJORD_WORLD_SIZE"},
	{"PMI_RANK", "PMI_SIZE"},
	{"OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE"},
	{"SLURM_PROCID", "SLURM_NTASKS"},
}

// Discover reads launcher settings from the environment. It is invoked
// once, before the lifecycle manager starts.
func Discover() Settings {
	return discover(os.Getenv)
}

func discover(getenv func(string) string) Settings {
	for _, pair := range rankVars {
		rankStr, sizeStr := getenv(pair[0]), getenv(pair[1])
		if rankStr == "" || sizeStr == "" {
			continue
		}
		rank, err1 := strconv.Atoi(rankStr)
		size, err2 := strconv.Atoi(sizeStr)
		if err1 != nil || err2 != nil || rank < 0 || size < 1 || rank >= size {
			continue
		}
		return Settings{Rank: rank, WorldSize: size, Launched: true}
	}
	return Settings{WorldSize: 1}
}
