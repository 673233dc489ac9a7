package ml

import (
	"encoding/json"
	"fmt"
)

// Label is the NSP class produced by the classifier.
type Label int

const (
	Normal Label = iota
	Suspect
	Pathological
)

// ClassNames is indexed by Label.
var ClassNames = []string{"Normal", "Suspect", "Pathological"}

func (l Label) String() string {
	if l < 0 || int(l) >= len(ClassNames) {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return ClassNames[l]
}

func (l Label) Valid() bool {
	return l >= Normal && l <= Pathological
}

func (l Label) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("unknown label %d", int(l))
	}
	return json.Marshal(l.String())
}

func (l *Label) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseLabel(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLabel maps a class name back to its Label.
func ParseLabel(name string) (Label, error) {
	for i, candidate := range ClassNames {
		if candidate == name {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("unknown label %q", name)
}
