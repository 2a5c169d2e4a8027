//go:build mage
// +build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

// Build compiles the pullsync command into the current directory.
func Build() error {
	return sh.Run(mg.GoCmd(), "build", "./cmd/pullsync")
}

// Test runs the unit tests.
// Set PULLSYNC_PG_TESTING_CONN,
// or PULLSYNC_GCS_TESTING_CREDS and PULLSYNC_GCS_TESTING_BUCKET,
// to include the tests that need outside services.
func Test() error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	return sh.RunV(mg.GoCmd(), args...)
}

func Vet() error {
	return sh.RunV(mg.GoCmd(), "vet", "./...")
}

// Check runs Vet and then Test.
func Check() {
	mg.SerialDeps(Vet, Test)
}

// Clean removes the binary made by Build.
func Clean() error {
	return sh.Rm("pullsync")
}
