// Command dev-token mints an access token signed with JWT_SECRET so the API can be
// exercised locally without the auth service.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"storefront-engine/internal/model"
	"storefront-engine/pkg/config"
	"storefront-engine/pkg/jwt"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Env
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, relying on system env")
	}
	cfg := config.Load()

	role := flag.String("role", model.RoleCustomer, "role code: ADMIN, STAFF or CUSTOMER")
	user := flag.String("user", "", "user id (random when empty)")
	email := flag.String("email", "dev@example.com", "email claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	privileges, ok := model.DefaultRolePrivileges[strings.ToUpper(*role)]
	if !ok {
		log.Fatalf("unknown role %q", *role)
	}

	id := uuid.New()
	if *user != "" {
		parsed, err := uuid.Parse(*user)
		if err != nil {
			log.Fatalf("invalid user id: %v", err)
		}
		id = parsed
	}

	// 2. Sign
	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, *ttl)
	token, err := tokens.GenerateToken(id, *email, "Developer", strings.ToUpper(*role), privileges)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	log.Printf("user %s role %s", id, strings.ToUpper(*role))
	fmt.Println(token)
}
