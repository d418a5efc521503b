package render

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// RendererEnv overrides renderer discovery when set.
const RendererEnv = "RENDERQA_RENDERER"

// DefaultRendererCandidates are the well-known install locations checked before PATH.
var DefaultRendererCandidates = []string{
	"/usr/bin/blender",
	"/usr/local/bin/blender",
	"/snap/bin/blender",
	"/Applications/Blender.app/Contents/MacOS/Blender",
}

// LocateRenderer resolves the renderer executable. An explicit path wins and
// must exist; otherwise each candidate is tried in order, then "blender" on PATH.
func LocateRenderer(explicit string, candidates []string, lookPath func(string) (string, error)) (string, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if p := strings.TrimSpace(explicit); p != "" {
		if isExecutable(p) {
			return p, nil
		}
		if resolved, err := lookPath(p); err == nil {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s", ErrRendererNotFound, p)
	}
	for _, c := range candidates {
		if isExecutable(c) {
			return c, nil
		}
	}
	if resolved, err := lookPath("blender"); err == nil {
		return resolved, nil
	}
	return "", fmt.Errorf("%w: set %s or install blender on PATH", ErrRendererNotFound, RendererEnv)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
