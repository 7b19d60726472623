// Command stationrec captures a high-rate UDP datagram stream to
// disk with bounded buffering, file splitting, and loss accounting.
package main

func main() {
	Execute()
}
