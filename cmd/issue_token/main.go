package main

import (
	"fmt"
	"log"
	"os"

	"github.com/onboarding/onboarding-service/domain/entity"
	"github.com/onboarding/onboarding-service/infrastructure/config"
	"github.com/onboarding/onboarding-service/infrastructure/service/jwt"
)

// Usage:
//
//	issue_token <user-id> [role]
//	issue_token inspect <token>
func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <user-id> [role] | inspect <token>", os.Args[0])
	}

	// Load configuration
	signing, err := config.LoadSigning()
	if err != nil {
		log.Fatalf("Failed to load signing configuration: %v", err)
	}

	tokenService, err := jwt.NewJWTService(signing)
	if err != nil {
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}

	if os.Args[1] == "inspect" {
		if len(os.Args) < 3 {
			log.Fatalf("usage: %s inspect <token>", os.Args[0])
		}
		outcome := tokenService.ValidateToken(os.Args[2])
		if !outcome.IsValid() {
			fmt.Printf("rejected: %s\n", outcome.Reason)
			os.Exit(1)
		}
		fmt.Printf("user:     %s\n", outcome.Claims.UserID)
		fmt.Printf("role:     %s\n", outcome.Claims.UserRole)
		fmt.Printf("jti:      %s\n", outcome.Claims.TokenID)
		fmt.Printf("expires:  %s\n", outcome.Claims.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		return
	}

	role := "Employee"
	if len(os.Args) > 2 {
		role = os.Args[2]
	}

	token, err := tokenService.GenerateToken(entity.NewIdentity(os.Args[1], entity.Role(role)))
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}
