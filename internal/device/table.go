// Package device finds supported displays among the hidraw nodes and owns
// the session that writes reports to one of them.
package device

import (
	"fmt"

	"codeberg.org/mutker/lkdisplay/internal/packet"
)

// Model is a supported display class
type Model struct {
	VendorID  uint16
	ProductID uint16
	Name      string
	Profile   *packet.Profile
}

// Table lists the supported models. Earlier entries win when a node
// matches more than one. Every model needs a valid Profile; a Session
// refuses to connect to one without.
type Table []Model

// DefaultTable returns the built-in models. It panics if a built-in profile
// is invalid.
func DefaultTable() Table {
	table := Table{
		{VendorID: 0x1B80, ProductID: 0xB538, Name: "GAMDIAS ATLAS", Profile: packet.GamdiasAtlas()},
		{VendorID: 0x0145, ProductID: 0x1005, Name: "HWCX Controller", Profile: packet.HWCX()},
	}

	for _, m := range table {
		if err := m.Profile.Validate(); err != nil {
			panic(err)
		}
	}

	return table
}

// Lookup returns the model matching a vendor and product ID
func (t Table) Lookup(vendorID, productID uint16) (Model, bool) {
	for _, m := range t {
		if m.VendorID == vendorID && m.ProductID == productID {
			return m, true
		}
	}

	return Model{}, false
}

// Descriptor identifies one attached display
type Descriptor struct {
	VendorID  uint16
	ProductID uint16
	Path      string
	// Name is the model name from the table
	Name    string
	Profile *packet.Profile
}

// String implements the Stringer interface
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%04X:%04X) at %s", d.Name, d.VendorID, d.ProductID, d.Path)
}
