// Package storage exposes the device's media as afero filesystems rooted at
// configured directories.
package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

var ErrNotMounted = errors.New("storage: medium not mounted")

// Mount roots a filesystem at dir on base. dir must exist and be a
// directory.
func Mount(base afero.Fs, dir string) (afero.Fs, error) {
	info, err := base.Stat(dir)
	if err != nil {
		return nil, errors.WithHintf(
			errors.Mark(errors.Wrapf(err, "mount %s", dir), ErrNotMounted),
			"create %s or point storage at an existing directory", dir)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrNotMounted, "%s is not a directory", dir)
	}
	return afero.NewBasePathFs(base, dir), nil
}

// MountOS mounts dir on the host filesystem.
func MountOS(dir string) (afero.Fs, error) {
	return Mount(afero.NewOsFs(), dir)
}
