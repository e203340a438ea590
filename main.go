package main

import "user-notifier/cmd"

func main() {
	cmd.Execute()
}
