package db

import (
	"time"
)

// Content item kinds.
const (
	KindFreet = "freet"
	KindReply = "reply"
)

// Vote polarities stored in Vote.Polarity.
const (
	PolarityUp   int8 = 1
	PolarityDown int8 = -1
)

// User table. Resolves usernames to stable ids; ids are never reused.
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;size:64;not null"`
	Email        string    `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// ContentItem is a freet or a reply. Replies point at their freet via ParentID.
type ContentItem struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	AuthorID  uint64    `gorm:"not null;index:idx_content_author"`
	Kind      string    `gorm:"size:16;not null"`
	ParentID  *uint64   `gorm:"index"`
	Content   string    `gorm:"size:140;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// FollowRecord marks that a user's follow adjacency exists.
// The followers/following sets themselves are derived from Follow rows.
type FollowRecord struct {
	OwnerID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Follow is a single follow edge follower -> followee.
//
// Composite PK: (FollowerID, FolloweeID)
//   - One row per edge, so following(A) and followers(B) can never disagree.
//
// Indexes:
//   - idx_followee_created(followee_id, created_at)
//     Serves "followers of B" lookups and their keyset pagination.
type Follow struct {
	FollowerID uint64    `gorm:"primaryKey;autoIncrement:false"`
	FolloweeID uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_followee_created,priority:1"`
	CreatedAt  time.Time `gorm:"not null;index:idx_followee_created,priority:2"`
}

// ReputationRecord marks that a user's reputation adjacency exists.
type ReputationRecord struct {
	OwnerID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Vote is an actor's reputation vote on a target.
//
// Composite PK: (ActorID, TargetID)
//   - At most one polarity per ordered pair; switching polarity overwrites the row.
//
// Indexes:
//   - idx_vote_target_polarity(target_id, polarity)
//     Serves upvoters/downvoters lookups and the score aggregate.
//
// Fields:
//   - Polarity: +1 for an upvote, -1 for a downvote.
type Vote struct {
	ActorID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	TargetID  uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_vote_target_polarity,priority:1"`
	Polarity  int8      `gorm:"not null;index:idx_vote_target_polarity,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// View is one immutable viewing event of a content item.
type View struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ViewerID  uint64    `gorm:"not null;index:idx_view_viewer_content_at,priority:1"`
	ContentID uint64    `gorm:"not null;index:idx_view_viewer_content_at,priority:2;index:idx_view_content"`
	ViewedAt  time.Time `gorm:"not null;index:idx_view_viewer_content_at,priority:3"`
}

// AllModels lists every table managed by AutoMigrate.
func AllModels() []any {
	return []any{
		&User{},
		&ContentItem{},
		&FollowRecord{},
		&Follow{},
		&ReputationRecord{},
		&Vote{},
		&View{},
	}
}
