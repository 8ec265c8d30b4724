package main

import "github.com/Corn-mrb/project/cmd"

func main() {
	cmd.Execute()
}
