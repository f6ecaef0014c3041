package main

import "github.com/aciencia/apiserver/cmd"

func main() {
	cmd.Execute()
}
