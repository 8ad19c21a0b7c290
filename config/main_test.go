package config

import (
	"os"
	"testing"
)

// TestMain pins GO_ENV to "test" so Load never picks up a developer's
// .env.development or .env.production by accident.
func TestMain(m *testing.M) {
	if err := os.Setenv("GO_ENV", "test"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
