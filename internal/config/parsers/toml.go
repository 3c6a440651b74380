package parsers

import (
	"bytes"

	"github.com/BurntSushi/toml"
)

// TOML implements a koanf parser for TOML documents.
type TOML struct{}

func Parser() *TOML {
	return &TOML{}
}

func (p *TOML) Unmarshal(b []byte) (map[string]interface{}, error) {
	mp := make(map[string]interface{})
	if _, err := toml.Decode(string(b), &mp); err != nil {
		return nil, err
	}
	return mp, nil
}

func (p *TOML) Marshal(o map[string]interface{}) ([]byte, error) {
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(o); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
