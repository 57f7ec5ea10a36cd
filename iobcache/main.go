// Command iobcache runs test programs on a simulated iob cache.
package main

import "github.com/sarchlab/iobcache/iobcache/cmd"

func main() {
	cmd.Execute()
}
