package channels

import (
	"github.com/studioalign/studio07-sub001/internal/core/posts"
)

// Role is a member's role within a channel.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleTeacher Role = "teacher"
	RoleMember  Role = "member"
)

// Member is a channel member with their role.
type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// Channel is the metadata for a studio channel.
type Channel struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []Member `json:"members"`
}

// ChannelDetail is the full fetch-channel result: metadata plus the ordered
// post list with nested media, reactions and comments.
type ChannelDetail struct {
	Channel Channel       `json:"channel"`
	Posts   []*posts.Post `json:"posts"`
}

// FindMember returns the member with the given user id, or nil.
func (c *Channel) FindMember(userID string) *Member {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}
