package main

import "github.com/siembox/go-detection-engine/cmd"

func main() {
	cmd.Execute()
}
