package main

import "github.com/khanhnv2901/seca-scanner/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
