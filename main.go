package main

import "github.com/drgolem/lanplayer/cmd"

func main() {
	cmd.Execute()
}
