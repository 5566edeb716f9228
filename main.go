package main

import "github.com/nextlevelbuilder/walkthrough/cmd"

func main() {
	cmd.Execute()
}
