// Command admintoken prints a signed bearer token for the admin API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"playforge/models"
	"playforge/utils"
)

func main() {
	subject := flag.String("sub", "", "token subject, e.g. an email address (required)")
	name := flag.String("name", "", "display name")
	role := flag.String("role", models.RoleAdmin, "role claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "admintoken: -sub is required")
		flag.Usage()
		os.Exit(2)
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "playforge"
	}

	token, err := utils.GenerateJWTToken(
		models.Principal{Subject: *subject, Name: *name, Role: *role},
		os.Getenv("JWT_SECRET"), issuer, *ttl,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "admintoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
