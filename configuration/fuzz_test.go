package configuration

import (
	"bytes"
	"testing"
)

// FuzzConfigurationParse implements a fuzzer that targets Parse()
// nolint:deadcode
func FuzzConfigurationParse(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		rd := bytes.NewReader(data)
		_, _ = Parse(rd, nil)
	})
}
