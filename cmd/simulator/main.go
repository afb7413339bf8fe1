// Command simulator runs a LEO constellation testbed.
package main

func main() {
	Execute()
}
