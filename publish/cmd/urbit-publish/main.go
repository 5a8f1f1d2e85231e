// Command urbit-publish deploys and operates a point network on an EVM chain.
package main

func main() {
	Execute()
}
