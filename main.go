package main

import "github.com/primait/nembo/cmd"

func main() {
	cmd.Execute()
}
