//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed with vireo.toml.
func (Run) Testbed() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("run", ".", "-config", "vireo.toml"), withStream())
	return err
}

// Runs every package test.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
