package bridge

import (
	"context"

	"github.com/fjordsim/fjord/engine"
	"github.com/fjordsim/fjord/errors"
)

// Library version. Compiled in, so the queries below work in any
// lifecycle state.
const (
	versionMajor = 0
	versionMinor = 3
	versionPatch = 1

	versionFull = "0.3.1"
)

// VersionMajor returns the library's major version.
func VersionMajor() int { return versionMajor }

// VersionMinor returns the library's minor version.
func VersionMinor() int { return versionMinor }

// VersionPatch returns the library's patch version.
func VersionPatch() int { return versionPatch }

// Version returns the library's full version string. Repeated calls
// return the same value for the lifetime of the process.
func Version() string { return versionFull }

// VersionPackages returns the names and versions of the packages the
// engine directly depends on, one "name version" pair per line, with
// "name n/a" for packages that report no version. The string is
// resolved once during Init and stable for the remaining session.
func (b *Bridge) VersionPackages() (string, error) {
	if err := b.requireReady("VersionPackages"); err != nil {
		return "", err
	}
	return b.pkgVersions, nil
}

// VersionPackagesExtended is VersionPackages including every transitive
// dependency.
func (b *Bridge) VersionPackagesExtended() (string, error) {
	if err := b.requireReady("VersionPackagesExtended"); err != nil {
		return "", err
	}
	return b.pkgVersionsExt, nil
}

// resolveVersionStrings queries the engine's two package listings once.
// Called during Init, after the symbol table is populated.
func (b *Bridge) resolveVersionStrings(ctx context.Context) error {
	var err error
	b.pkgVersions, err = b.versionString(ctx, opVersionPackages)
	if err != nil {
		return err
	}
	b.pkgVersionsExt, err = b.versionString(ctx, opVersionPackagesExtended)
	return err
}

func (b *Bridge) versionString(ctx context.Context, id op) (string, error) {
	fn := b.table.get(id)
	stack := [1]uint64{}
	if err := fn.Call(ctx, stack[:]); err != nil {
		return "", errors.Dispatch(ops[id].name, err)
	}
	s, err := engine.ReadString(b.rt.Memory(), stack[0])
	if err != nil {
		return "", errors.Dispatch(ops[id].name, err)
	}
	return s, nil
}
