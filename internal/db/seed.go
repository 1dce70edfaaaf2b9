package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// seedTables lists every table SeedTestData clears, children before parents.
var seedTables = []string{
	"views",
	"votes",
	"follows",
	"reputation_records",
	"follow_records",
	"content_items",
	"users",
}

// SeedTestData resets the database and populates it with demo users and content.
//
// Behavior:
//  1. Clears every graph table, the view ledger, content items and users.
//  2. Creates 20 users with hashed passwords.
//  3. Gives each user 3 freets and replies to a random earlier freet.
//
// Graph records, follows, votes and views are not written here; they go
// through the engine so every mutation respects eligibility. The ids of the
// seeded users are returned for that purpose.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB) ([]uint64, error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range seedTables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	// Reset auto-increment sequences
	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE views AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE content_items AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('views', 'content_items', 'users')")
	}

	log.Println("Cleared existing data")

	// every demo account shares the same password
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// --- Seed Users ---
	ids := make([]uint64, 0, 20)
	for i := 1; i <= 20; i++ {
		user := User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: string(hash),
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to seed user: %w", err)
		}
		ids = append(ids, user.ID)
	}
	log.Println("Seeded 20 users.")

	// --- Seed content (3 freets each, plus replies) ---
	var freets []uint64
	for _, author := range ids {
		for j := 1; j <= 3; j++ {
			item := ContentItem{
				AuthorID: author,
				Kind:     KindFreet,
				Content:  fmt.Sprintf("freet %d by user %d", j, author),
			}
			if err := db.Create(&item).Error; err != nil {
				return nil, fmt.Errorf("failed to seed freet: %w", err)
			}
			freets = append(freets, item.ID)
		}

		parent := freets[r.Intn(len(freets))]
		reply := ContentItem{
			AuthorID: author,
			Kind:     KindReply,
			ParentID: &parent,
			Content:  fmt.Sprintf("reply to %d by user %d", parent, author),
		}
		if err := db.Create(&reply).Error; err != nil {
			return nil, fmt.Errorf("failed to seed reply: %w", err)
		}
	}
	log.Printf("Seeded %d freets and %d replies.", len(freets), len(ids))

	return ids, nil
}
