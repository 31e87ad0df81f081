// Package platform resolves the runner's OS and architecture into the
// release asset that serves it. Resolution is a pure lookup against a fixed
// support table; unknown combinations fail rather than fall back to a
// default build.
package platform

import (
	"fmt"
	"runtime"
	"strings"

	"boringcache.com/setup/internal/infrastructure/env"
)

// OS is the runner operating system, normalized to release naming.
type OS string

// Arch is the runner architecture, normalized to release naming.
type Arch string

const (
	OSLinux   OS = "linux"
	OSMacOS   OS = "macos"
	OSWindows OS = "windows"

	ArchX64   Arch = "x64"
	ArchARM64 Arch = "arm64"
)

// Descriptor identifies the platform a run executes on and the release
// asset built for it. Immutable after resolution.
type Descriptor struct {
	OS        OS
	Arch      Arch
	AssetName string
	IsWindows bool
}

// UnsupportedError reports an (os, arch) pair with no published build.
type UnsupportedError struct {
	OS   string
	Arch string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported platform: %s/%s", e.OS, e.Arch)
}

// assetTable is the complete set of published builds. Pairs outside this
// table are unsupported, never defaulted.
var assetTable = map[[2]string]string{
	{string(OSLinux), string(ArchX64)}:   "boringcache-linux-amd64",
	{string(OSLinux), string(ArchARM64)}: "boringcache-linux-arm64",
	{string(OSMacOS), string(ArchARM64)}: "boringcache-macos-arm64",
	{string(OSWindows), string(ArchX64)}: "boringcache-windows-amd64.exe",
}

// Resolve derives the platform descriptor from RUNNER_OS / RUNNER_ARCH,
// falling back to the values the Go runtime reports when either is unset.
func Resolve(environ env.Provider) (Descriptor, error) {
	osName := normalizeOS(environ.Getenv("RUNNER_OS"))
	archName := normalizeArch(environ.Getenv("RUNNER_ARCH"))

	asset, ok := assetTable[[2]string{osName, archName}]
	if !ok {
		return Descriptor{}, &UnsupportedError{OS: osName, Arch: archName}
	}

	return Descriptor{
		OS:        OS(osName),
		Arch:      Arch(archName),
		AssetName: asset,
		IsWindows: osName == string(OSWindows),
	}, nil
}

func normalizeOS(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "linux":
		return string(OSLinux)
	case "macos", "darwin":
		return string(OSMacOS)
	case "windows":
		return string(OSWindows)
	case "":
		return fromGOOS(runtime.GOOS)
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

func normalizeArch(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "x64", "amd64", "x86_64":
		return string(ArchX64)
	case "arm64", "aarch64":
		return string(ArchARM64)
	case "":
		return fromGOARCH(runtime.GOARCH)
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

func fromGOOS(goos string) string {
	if goos == "darwin" {
		return string(OSMacOS)
	}
	return goos
}

func fromGOARCH(goarch string) string {
	if goarch == "amd64" {
		return string(ArchX64)
	}
	return goarch
}
