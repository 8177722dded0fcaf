package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/gatekey/gatekey/domain/entity"
	"github.com/gatekey/gatekey/infrastructure/config"
	"github.com/gatekey/gatekey/infrastructure/persistence/postgres"
	"github.com/gatekey/gatekey/infrastructure/service/password"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if len(os.Args) < 3 {
		log.Fatal("usage: create_admin <email> <password>")
	}
	email := os.Args[1]
	userPassword := os.Args[2]

	passwordService := password.NewBcryptPasswordService(10)
	hashedPassword, err := passwordService.HashPassword(userPassword)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	role := "admin"
	adminUser := entity.NewUser(uuid.NewString(), email, hashedPassword, &role)

	userRepo := postgres.NewUserRepository(db)
	if err := userRepo.Create(ctx, adminUser); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	fmt.Printf("Admin user created: %s (id %s)\n", email, adminUser.ID)
}
