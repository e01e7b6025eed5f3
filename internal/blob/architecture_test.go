package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlyFactoriesImportInfra ensures the infra backends are reached only
// through the blob and docstore factories. Other packages depend on the
// Store interfaces.
func TestOnlyFactoriesImportInfra(t *testing.T) {
	const infraPrefix = "peerhub/internal/infra"
	allowed := []string{"peerhub/internal/blob", "peerhub/internal/docstore", infraPrefix}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "peerhub/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if hasAnyPrefix(pkg.PkgPath, allowed) {
			continue
		}
		for importPath := range pkg.Imports {
			if hasAnyPrefix(importPath, []string{infraPrefix}) {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import of infra package: %s", v)
		}
		t.Fatalf("found %d forbidden imports of infra packages", len(violations))
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
