package main

import "github.com/May-aiworks/discord-info-bot/cmd"

func main() {
	cmd.Execute()
}
