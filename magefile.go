//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the tgem executable.
func Build() error {
	mg.Deps(BuildTgem)
	fmt.Println("Compilation finished")
	return nil
}

// BuildTgem builds ./bin/tgem. HDF5 output needs cgo, so CGO_CFLAGS and
// CGO_LDFLAGS are passed through to the compiler.
func BuildTgem() error {
	fmt.Println("Building tgem executable...")
	return goCmd("build", "-o", "./bin/tgem", "./main")
}

// Test runs every package's tests.
func Test() error {
	fmt.Println("Running tests...")
	return goCmd("test", "./...")
}

// Bench runs the geometry and transport benchmarks.
func Bench() error {
	return goCmd("test", "-run", "^$", "-bench", ".",
		"./geom", "./mat", "./field", "./avalanche")
}

func goCmd(args ...string) error {
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", os.Getenv("CGO_LDFLAGS")),
		fmt.Sprintf("CGO_CFLAGS=%s", os.Getenv("CGO_CFLAGS")))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
