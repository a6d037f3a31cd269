// Command devtoken mints an HS256 access token for local testing, signed
// with JWT_SECRET from the environment or .env.
//
//	go run ./cmd/devtoken -user 42 -role CUSTOMER -email a@example.com
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/cinema-booking/internal/utils"
)

func main() {
	userID := flag.Uint64("user", 1, "user id placed in sub")
	role := flag.String("role", "CUSTOMER", "CUSTOMER or ADMIN")
	email := flag.String("email", "", "optional email claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	tok, err := utils.NewAccessToken(secret, *userID, strings.ToUpper(*role), *email, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
