package entry

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// compareRoles orders roles by rank. Higher positions rank higher; on a
// tie the older role (lower ID) ranks higher.
func compareRoles(a, b *discordgo.Role) int {
	if a.Position != b.Position {
		return a.Position - b.Position
	}
	return compareSnowflakes(b.ID, a.ID)
}

// memberRoles resolves the member's role IDs against the guild's roles,
// lowest rank first. The @everyone role, whose ID is the guild ID, is
// always included. Role IDs not in guildRoles are dropped.
func memberRoles(member *discordgo.Member, guildRoles []*discordgo.Role, guildID string) []*discordgo.Role {
	var held []*discordgo.Role
	for _, role := range guildRoles {
		if role.ID == guildID || slices.Contains(member.Roles, role.ID) {
			held = append(held, role)
		}
	}
	slices.SortFunc(held, compareRoles)
	return held
}

// roleNames returns the names of roles, without @everyone.
func roleNames(roles []*discordgo.Role, guildID string) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		if role.ID == guildID {
			continue
		}
		names = append(names, role.Name)
	}
	return names
}

// meetsMinimum reports whether any held role ranks at or above minRole.
func meetsMinimum(held []*discordgo.Role, minRole *discordgo.Role) bool {
	for _, role := range held {
		if compareRoles(role, minRole) >= 0 {
			return true
		}
	}
	return false
}

func findRole(roles []*discordgo.Role, roleID string) *discordgo.Role {
	for _, role := range roles {
		if role.ID == roleID {
			return role
		}
	}
	return nil
}

// callerRoleNames resolves the names of the roles attached to an
// interaction member.
func callerRoleNames(member *discordgo.Member, guildRoles []*discordgo.Role, guildID string) []string {
	if member == nil {
		return nil
	}
	return roleNames(memberRoles(member, guildRoles, guildID), guildID)
}
