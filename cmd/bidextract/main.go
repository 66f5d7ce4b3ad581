// Command bidextract turns procurement documents into structured records.
package main

import (
	"os"
)

func main() {
	os.Exit(Execute(os.Args[1:]))
}
