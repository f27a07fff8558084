package main

import "dance-match-backend/cmd"

func main() {
	cmd.Run()
}
