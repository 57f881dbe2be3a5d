package schema

import (
	"bytes"
	"os"

	"github.com/BurntSushi/toml"
)

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func encodeTOML(fs fileSchema) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
