package main

import "github.com/theirongolddev/costledger/cmd"

func main() {
	cmd.Execute()
}
