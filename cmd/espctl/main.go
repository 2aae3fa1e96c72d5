// espctl -- operator tool for generating SA key material and exercising
// the espd ESP datagram engine locally.
package main

import "github.com/dantte-lp/espd/cmd/espctl/commands"

func main() {
	commands.Execute()
}
