//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "shaders"

// Compiles every GLSL stage under shaders/ into the SPIR-V the vulkan backend loads.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the framegraph binary.
func (Build) Binary() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/framegraph", "."), withStream())
	return err
}

func buildShaders() error {
	var sources []string
	for _, ext := range []string{"vert", "frag", "comp"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, "*."+ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		fmt.Printf("No shaders found in %s, skipping.\n", shaderDir)
		return nil
	}
	for _, src := range sources {
		out := src + ".spv"
		if fresh, err := upToDate(src, out); err != nil {
			return err
		} else if fresh {
			continue
		}
		if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

func upToDate(src, out string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	outInfo, err := os.Stat(out)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return !outInfo.ModTime().Before(srcInfo.ModTime()), nil
}
