package device

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/logger"
	"codeberg.org/mutker/lkdisplay/internal/sysfs"
)

const (
	DefaultSysRoot = "/sys"
	DefaultDevDir  = "/dev"
)

// Identity is what the kernel reports about a hidraw node
type Identity struct {
	Bus       uint32
	VendorID  uint16
	ProductID uint16
	Name      string
}

type identifyFunc func(path string) (Identity, error)

// Locator matches hidraw nodes against a Table
type Locator struct {
	table    Table
	sysRoot  string
	devDir   string
	identify identifyFunc
}

// LocatorOption configures a Locator
type LocatorOption func(*Locator)

// WithSysRoot reads node identities below root instead of /sys
func WithSysRoot(root string) LocatorOption {
	return func(l *Locator) {
		l.sysRoot = root
	}
}

// WithDevDir enumerates hidraw nodes in dir instead of /dev
func WithDevDir(dir string) LocatorOption {
	return func(l *Locator) {
		l.devDir = dir
	}
}

// NewLocator creates a Locator for the models in table
func NewLocator(table Table, opts ...LocatorOption) *Locator {
	l := &Locator{
		table:    table,
		sysRoot:  DefaultSysRoot,
		devDir:   DefaultDevDir,
		identify: identifyNode,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Locate returns the first supported display in hidraw order. Finding
// nothing is normal and not an error.
func (l *Locator) Locate() (Descriptor, bool) {
	found := l.scan(true)
	if len(found) == 0 {
		return Descriptor{}, false
	}

	return found[0], true
}

// Scan returns every supported display in hidraw order
func (l *Locator) Scan() []Descriptor {
	return l.scan(false)
}

func (l *Locator) scan(first bool) []Descriptor {
	var found []Descriptor

	for _, node := range sysfs.IndexedEntries(l.devDir, "hidraw") {
		path := filepath.Join(l.devDir, node)

		id, err := l.identity(node, path)
		if err != nil {
			logger.Debug().Str("path", path).Err(err).Msg("Skipping HID node")
			continue
		}

		model, ok := l.table.Lookup(id.VendorID, id.ProductID)
		if !ok {
			continue
		}

		found = append(found, Descriptor{
			VendorID:  model.VendorID,
			ProductID: model.ProductID,
			Path:      path,
			Name:      model.Name,
			Profile:   model.Profile,
		})
		if first {
			break
		}
	}

	return found
}

// identity prefers sysfs, which needs no access to the node itself
func (l *Locator) identity(node, path string) (Identity, error) {
	uevent := filepath.Join(l.sysRoot, "class", "hidraw", node, "device", "uevent")
	if id, err := parseUevent(uevent); err == nil {
		return id, nil
	}

	return l.identify(path)
}

// parseUevent reads HID_ID=<bus>:<vendor>:<product> and HID_NAME from a HID
// device uevent file
func parseUevent(path string) (Identity, error) {
	errFactory := errors.New()

	file, err := os.Open(path)
	if err != nil {
		return Identity{}, err
	}
	defer file.Close()

	var (
		id    Identity
		found bool
	)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "HID_ID":
			parts := strings.Split(value, ":")
			if len(parts) != 3 {
				return Identity{}, errFactory.WithData(ErrIdentifyFailed, value)
			}
			bus, err1 := strconv.ParseUint(parts[0], 16, 32)
			vendor, err2 := strconv.ParseUint(parts[1], 16, 32)
			product, err3 := strconv.ParseUint(parts[2], 16, 32)
			if err1 != nil || err2 != nil || err3 != nil {
				return Identity{}, errFactory.WithData(ErrIdentifyFailed, value)
			}
			id.Bus = uint32(bus)
			id.VendorID = uint16(vendor)
			id.ProductID = uint16(product)
			found = true
		case "HID_NAME":
			id.Name = value
		}
	}

	if err := scanner.Err(); err != nil {
		return Identity{}, err
	}
	if !found {
		return Identity{}, errFactory.WithData(ErrIdentifyFailed, path)
	}

	return id, nil
}
