//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the GLSL shaders in shaders/ to SPIR-V.
func (Build) Shaders() error {
	if _, err := executeCmd("glslc", withArgs("shaders/triangle.vert", "-o", "shaders/triangle.vert.spv"), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("glslc", withArgs("shaders/triangle.frag", "-o", "shaders/triangle.frag.spv"), withStream()); err != nil {
		return err
	}
	return nil
}

// Builds the engine binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "lumen", "."), withStream()); err != nil {
		return err
	}
	return nil
}
