package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestBuildVersionString(t *testing.T) {
	color.NoColor = true

	got := buildVersionString()
	if !strings.HasPrefix(got, "rigctl unknown (") {
		t.Errorf(`buildVersionString() = %q, want prefix "rigctl unknown ("`, got)
	}

	Version = "v0.3.1"
	defer func() { Version = "" }()
	got = buildVersionString()
	if !strings.HasPrefix(got, "rigctl v0.3.1 (") {
		t.Errorf(`buildVersionString() = %q, want prefix "rigctl v0.3.1 ("`, got)
	}
}
