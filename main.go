// The main package for the edge-sitemaps executable.
package main

import "github.com/JakeFAU/edge-sitemaps/cmd"

func main() {
	cmd.Execute()
}
