package device

import (
	"os"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"golang.org/x/sys/unix"
)

// identifyNode asks the hidraw driver directly. The node is opened
// non-blocking and closed again before returning.
func identifyNode(path string) (Identity, error) {
	errFactory := errors.New()

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return Identity{}, errFactory.Wrap(ErrIdentifyFailed, &os.PathError{Op: "open", Path: path, Err: err})
	}
	defer unix.Close(fd)

	info, err := unix.IoctlHIDGetRawInfo(fd)
	if err != nil {
		return Identity{}, errFactory.Wrap(ErrIdentifyFailed, err)
	}

	name, err := unix.IoctlHIDGetRawName(fd)
	if err != nil {
		name = ""
	}

	return Identity{
		Bus:       info.Bustype,
		VendorID:  uint16(info.Vendor),
		ProductID: uint16(info.Product),
		Name:      name,
	}, nil
}
