package domain

import (
	"testing"

	"peerhub/internal/testutil"
)

// TestDomainDoesNotImportInternal keeps the record and schema layer free of
// storage, transport and service packages so clients can import it alone.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InternalImport, testutil.TransportImport),
		"domain must stay importable by clients")
}
