package main

import (
	"log"

	"ticket-checkout/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
