//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

type Build mg.Namespace

const shaderDir = "shaders"

var shaderStages = []string{".vert", ".frag", ".comp"}

// Compiles every GLSL stage under shaders/ to SPIR-V with glslc. Up to date
// modules are skipped.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the testbed binary into bin/.
func (Build) Testbed() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "vireo"), "."), withStream())
	return err
}

func buildShaders() error {
	entries, err := os.ReadDir(shaderDir)
	if err != nil {
		return errors.Wrapf(err, "reading %s", shaderDir)
	}
	built := 0
	for _, e := range entries {
		if e.IsDir() || !isShaderStage(e.Name()) {
			continue
		}
		src := filepath.Join(shaderDir, e.Name())
		dst := src + ".spv"
		stale, err := target.Path(dst, src, filepath.Join(shaderDir, "common.glsl"))
		if err != nil {
			return err
		}
		if !stale {
			continue
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", "-O", "-I", shaderDir, src, "-o", dst), withStream()); err != nil {
			return err
		}
		built++
	}
	if mg.Verbose() {
		fmt.Printf("compiled %d shader modules\n", built)
	}
	return nil
}

func isShaderStage(name string) bool {
	for _, ext := range shaderStages {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
