/*
Copyright © 2025 tieubaoca
*/
package main

import (
	"github.com/joho/godotenv"
	"github.com/tieubaoca/memory-be/cmd"
)

func main() {
	cmd.Execute()
}

func init() {
	// .env is optional; config and real env vars cover everything it holds.
	godotenv.Load()
}
