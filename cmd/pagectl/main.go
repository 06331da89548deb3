// Command pagectl inspects memory layouts and exercises the physical page
// allocator over simulated RAM.
package main

func main() {
	execute()
}
