package fetch

import (
	"embed"
	"fmt"
	"os"

	"github.com/amosWeiskopf/riacrawler/internal/models"
)

//go:embed lua/*.lua
var luaFS embed.FS

var embeddedScripts = map[models.RenderScript]string{
	models.ScriptSubmitFilter:  "lua/submit_filter.lua",
	models.ScriptRenderListing: "lua/render_listing.lua",
	models.ScriptRenderDetail:  "lua/render_detail.lua",
}

// Scripts maps each render behaviour to the Lua source Splash executes
type Scripts map[models.RenderScript]string

// LoadScripts returns the embedded scripts, replacing those named in
// overrides with the contents of the given files.
func LoadScripts(overrides map[models.RenderScript]string) (Scripts, error) {
	scripts := make(Scripts, len(embeddedScripts))
	for name, path := range embeddedScripts {
		src, err := luaFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded script %s: %w", name, err)
		}
		scripts[name] = string(src)
	}

	for name, path := range overrides {
		if path == "" {
			continue
		}
		if _, ok := embeddedScripts[name]; !ok {
			return nil, fmt.Errorf("unknown render script %q", name)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read script %s: %w", name, err)
		}
		scripts[name] = string(src)
	}
	return scripts, nil
}

// Source returns the Lua source for a render behaviour
func (s Scripts) Source(name models.RenderScript) (string, error) {
	src, ok := s[name]
	if !ok {
		return "", fmt.Errorf("no script for %q", name)
	}
	return src, nil
}
