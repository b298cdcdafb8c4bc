//go:build !linux

package device

import "codeberg.org/mutker/lkdisplay/internal/errors"

func identifyNode(path string) (Identity, error) {
	return Identity{}, errors.New().WithData(ErrIdentifyFailed, path)
}
