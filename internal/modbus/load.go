package modbus

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/energymon/internal/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadRegisterMap reads a register map from a YAML (.yaml, .yml) or TOML
// (.toml) file. Unknown fields are rejected.
func LoadRegisterMap(path string) (RegisterMap, error) {
	errFactory := errors.New()

	raw, err := os.ReadFile(path)
	if err != nil {
		return RegisterMap{}, errFactory.Wrap(ErrLoadRegisterMap, err)
	}

	var m RegisterMap
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&m)
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&m)
	default:
		return RegisterMap{}, errFactory.WithData(ErrLoadRegisterMap, struct {
			Path   string
			Reason string
		}{path, "unsupported extension " + ext})
	}
	if err != nil {
		return RegisterMap{}, errFactory.Wrap(ErrLoadRegisterMap, err).WithData(path)
	}

	if len(m.Registers) == 0 {
		return RegisterMap{}, errFactory.WithData(ErrLoadRegisterMap, struct {
			Path   string
			Reason string
		}{path, "no registers defined"})
	}

	return m, nil
}
