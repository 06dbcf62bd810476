package firmware

import (
	"context"
	"os"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/hwversion"
	"github.com/buckleypaul/dinoflash/internal/provision"
)

// Artifact is one file of a complete flash.
type Artifact struct {
	// Type is the registry file type.
	Type string
	// FileName is the local file name inside the mode directory.
	FileName string
}

// Artifacts lists the files of a complete flash, in download order.
var Artifacts = []Artifact{
	{Type: "bootloader", FileName: "bootloader.bin"},
	{Type: "app", FileName: "magical-toys.bin"},
	{Type: "partition_table", FileName: "partition-table.bin"},
	{Type: "ota_initial", FileName: "ota_data_initial.bin"},
}

// ArtifactSet holds the local paths of a downloaded build.
type ArtifactSet struct {
	Build          Build
	Bootloader     string
	App            string
	PartitionTable string
	OTAInitial     string
}

func (s *ArtifactSet) set(fileType, path string) {
	switch fileType {
	case "bootloader":
		s.Bootloader = path
	case "app":
		s.App = path
	case "partition_table":
		s.PartitionTable = path
	case "ota_initial":
		s.OTAInitial = path
	}
}

// Acquirer downloads the build matching a mode and hardware version.
type Acquirer struct {
	Client *Client
	// Dir is the root firmware directory. Each mode gets its own
	// subdirectory whose contents are replaced on every acquisition.
	Dir            string
	ProductionPath string
	TestingPath    string
}

// NewAcquirer returns an Acquirer using the default registry paths.
func NewAcquirer(client *Client, dir string) *Acquirer {
	return &Acquirer{
		Client:         client,
		Dir:            dir,
		ProductionPath: "builds",
		TestingPath:    "testing-builds",
	}
}

func (a *Acquirer) registryPath(mode provision.Mode) string {
	if mode == provision.Testing {
		return a.TestingPath
	}
	return a.ProductionPath
}

// Acquire lists builds, selects the newest compatible one and downloads all
// of its artifacts. Any network failure aborts the whole acquisition.
func (a *Acquirer) Acquire(ctx context.Context, mode provision.Mode, v hwversion.Version, emit provision.Emitter) (ArtifactSet, error) {
	path := a.registryPath(mode)
	emit.Emit(provision.Logf(provision.Firmware, provision.Info, "Fetching %s firmware list for hardware %s", mode, v))

	builds, err := a.Client.ListBuilds(ctx, path)
	if err != nil {
		emit.Emit(provision.Logf(provision.Firmware, provision.Error, "Network error while listing builds: %v", err))
		return ArtifactSet{}, provision.Wrap(provision.NetworkError, err)
	}
	build, err := Select(builds, v)
	if err != nil {
		emit.Emit(provision.Logf(provision.Firmware, provision.Error, "No compatible %s firmware found for hardware %s", mode, v))
		return ArtifactSet{}, err
	}
	emit.Emit(provision.Logf(provision.Firmware, provision.Info, "Selected build %s (%s, created %s)", build.Name, build.ID, build.CreatedAt.Raw))

	dir := filepath.Join(a.Dir, string(mode))
	if err := resetDir(dir); err != nil {
		return ArtifactSet{}, provision.Wrap(provision.NetworkError, errors.Annotatef(err, "preparing %s", dir))
	}

	set := ArtifactSet{Build: build}
	for _, art := range Artifacts {
		dest := filepath.Join(dir, art.FileName)
		emit.Emit(provision.Logf(provision.Firmware, provision.Info, "Downloading %s", art.FileName))
		if err := a.Client.Download(ctx, path, build.ID, art.Type, dest); err != nil {
			emit.Emit(provision.Logf(provision.Firmware, provision.Error, "Network error while downloading: %v", err))
			return ArtifactSet{}, provision.Wrap(provision.NetworkError, err)
		}
		set.set(art.Type, dest)
	}
	emit.Emit(provision.Logf(provision.Firmware, provision.Success, "%s firmware for %s downloaded", mode.Title(), v))
	return set, nil
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
