package main

import "github.com/killallgit/skillstream/cmd"

func main() {
	cmd.Execute()
}
