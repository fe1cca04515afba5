// Command simulate_tcp runs the broadcast-frame simulator behind a TCP
// listener, for driving the daemon's "tcp" bus driver without hardware.
package main

import (
	"flag"
	"log"

	"candiag/testing/simulator"
)

func main() {
	addr := flag.String("addr", "localhost:6789", "listen address")
	flag.Parse()

	if err := simulator.StartTCPServer(*addr); err != nil {
		log.Fatal(err)
	}
}
