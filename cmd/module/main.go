// Package main serves the W5500 ethernet models to viam-server.
package main

import (
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"

	"github.com/viam-modules/w5500/components/ethernet"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: ethernet.Model},
		resource.APIModel{API: generic.API, Model: ethernet.FakeModel},
	)
}
