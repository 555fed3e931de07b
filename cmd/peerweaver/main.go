// Package main provides the peerweaver node and crawl CLI.
package main

func main() {
	Execute()
}
