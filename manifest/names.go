package manifest

import (
	"fmt"
	"strings"
)

// Windows reserved names (case-insensitive)
var windowsReservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// ValidateName checks a parameter or intrinsic result name.
// Rules:
//   - ASCII letters, digits and underscore only
//   - Does not start with a digit
//
// '.' is excluded since multi-component results are named name.x, name.y.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			// valid
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("name %q starts with a digit", name)
			}
		default:
			return fmt.Errorf("invalid character %q at position %d in name %q", r, i, name)
		}
	}
	return nil
}

// ValidateKernelName checks a kernel name. Besides the ValidateName rules
// it must not be a Windows reserved name, as cached IR is stored under it.
func ValidateKernelName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if windowsReservedNames[strings.ToLower(name)] {
		return fmt.Errorf("kernel name %q is a Windows reserved name", name)
	}
	return nil
}
