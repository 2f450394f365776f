package main

import (
	"go.brendoncarroll.net/star"

	"nsbaci.org/nsbaci/baccmd"
)

func main() {
	star.Main(baccmd.Root())
}
