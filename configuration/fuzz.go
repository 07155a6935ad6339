// +build gofuzz

package configuration

import (
	"bytes"
)

// parserFuzzer implements a fuzzer that targets Parse()
// Export before building
// nolint:deadcode
func parserFuzzer(data []byte) int {
	rd := bytes.NewReader(data)
	_, _ = Parse(rd, nil)
	return 1
}
