//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed frame graph on the recorder device and prints the trace.
func (Run) Recorder() error {
	fmt.Println("Run framegraph on the recorder...")
	_, err := executeCmd("go", withArgs("run", ".", "-backend", "recorder", "-trace"), withStream())
	return err
}

// Compiles the shaders and runs the testbed frame graph on the Vulkan device.
func (Run) Vulkan() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run framegraph on vulkan...")
	_, err := executeCmd("go", withArgs("run", ".", "-backend", "vulkan"), withStream())
	return err
}

type Test mg.Namespace

// Runs the unit tests.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the unit tests with the race detector.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs go vet over the module.
func Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}
