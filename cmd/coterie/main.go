package main

import (
	"log"

	"github.com/joho/godotenv"

	"coterie/cmd/internal/app"
)

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
