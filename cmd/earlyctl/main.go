// Command earlyctl replays boot-time allocation scenarios against the early
// allocator and reports how the span was carved up.
package main

func main() {
	execute()
}
