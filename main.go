package main

import "github.com/donaldong/sorbet/cmd"

func main() {
	cmd.Execute()
}
