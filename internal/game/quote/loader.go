package quote

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// poolFile is the on-disk layout: one list per category name.
type poolFile struct {
	GameStart []string `yaml:"gameStart"`
	Capture   []string `yaml:"capture"`
	Check     []string `yaml:"check"`
	Checkmate []string `yaml:"checkmate"`
	Draw      []string `yaml:"draw"`
}

// LoadFile reads quote pools from a YAML file. Unknown keys are rejected.
// Categories absent from the file are omitted from the result; NewSelector
// fills them from the defaults.
//
// Precondition: path names a readable YAML file.
// Postcondition: Returns the parsed pools or a non-nil error.
func LoadFile(path string) (Pools, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading quotes %q: %w", path, err)
	}
	var f poolFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing quotes %q: %w", path, err)
	}

	pools := Pools{}
	for c, qs := range map[Category][]string{
		GameStart: f.GameStart,
		Capture:   f.Capture,
		Check:     f.Check,
		Checkmate: f.Checkmate,
		Draw:      f.Draw,
	} {
		for i, q := range qs {
			if q == "" {
				return nil, fmt.Errorf("parsing quotes %q: %s[%d] is empty", path, c, i)
			}
		}
		if len(qs) > 0 {
			pools[c] = qs
		}
	}
	return pools, nil
}
