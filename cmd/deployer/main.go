package main

import "github.com/alvesdmateus/ecs-deployer/internal/cli/commands"

func main() {
	commands.Execute()
}
