package assertcheck

import (
	"fmt"
	"os"

	"github.com/shibukawa/xqtsrunner"
)

// loadAssertXmlExpected returns the literal expected XML text for an
// AssertXml assertion, reading it from disk as UTF-8 when ExpectedIsFile
// is set. This runner resolves that path directly from the filesystem
// rather than through the resource cache (DESIGN.md): unlike schemas,
// sources and resources, an assert-xml file attribute is not declared as
// part of the test case's Environment and so never enters the Pending-
// Cases Index's fan-in.
func loadAssertXmlExpected(v xqtsrunner.AssertXml) (string, error) {
	if !v.ExpectedIsFile {
		return v.Expected, nil
	}

	b, err := os.ReadFile(v.Expected)
	if err != nil {
		return "", fmt.Errorf("reading assert-xml file %q: %w", v.Expected, err)
	}

	return string(b), nil
}
