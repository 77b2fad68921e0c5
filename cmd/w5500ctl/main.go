// Package main is a bench tool for a W5500 wired to a Linux SPI bus.
package main

import (
	"log"
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
