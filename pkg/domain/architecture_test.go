package domain

import (
	"testing"

	"sitecontent/internal/testutil"
)

// TestDomainDoesNotImportInternal keeps the content model free of
// implementation packages so every backend and the HTTP layer can share it.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain must stay implementation free")
}
