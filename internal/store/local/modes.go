package local

import "os"

// Modes are the permissions used for directories and entry files.
type Modes struct {
	Dir  os.FileMode
	File os.FileMode
}

// DefaultModes keep the store private to the user.
var DefaultModes = Modes{Dir: 0700, File: 0600}

// deriveModes extends the default modes with group read access if the store
// directory grants it, so a store shared by a group stays shared.
func deriveModes(fi os.FileInfo, err error) Modes {
	m := DefaultModes
	if err != nil {
		return m
	}

	if fi.Mode()&0040 != 0 { // Group has read access
		m.Dir |= 0070
		m.File |= 0060
	}

	return m
}
