package models

import (
	"strings"
	"time"
)

// Volunteer represents an active roster entry
type Volunteer struct {
	Phone         string   `json:"phone"`
	Name          string   `json:"name"`
	Skills        []string `json:"skills"`
	Available     bool     `json:"available"`
	CurrentRole   string   `json:"current_role,omitempty"`
	PreferredRole string   `json:"preferred_role,omitempty"`
}

// DeletedVolunteer is an archived roster entry
type DeletedVolunteer struct {
	Volunteer
	DeletedAt time.Time `json:"deleted_at"`
}

// Role is the permission tag a command may require
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AnonymousName is used when a user skips giving a name during registration.
const AnonymousName = "Anonymous"

// MergeSkills appends incoming skills to existing ones, dropping
// case-insensitive duplicates. The first casing seen for a skill wins.
func MergeSkills(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))

	add := func(skill string) {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			return
		}
		key := strings.ToLower(skill)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, skill)
	}

	for _, s := range existing {
		add(s)
	}
	for _, s := range incoming {
		add(s)
	}
	return merged
}

// SerializeSkills joins skills into the comma separated column format.
func SerializeSkills(skills []string) string {
	return strings.Join(skills, ",")
}

// DeserializeSkills is the inverse of SerializeSkills.
func DeserializeSkills(value string) []string {
	if value == "" {
		return []string{}
	}
	return strings.Split(value, ",")
}

// ParseSkillInput splits free text typed by a user ("python, first aid")
// into trimmed, non-empty skills.
func ParseSkillInput(input string) []string {
	var skills []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.Join(strings.Fields(part), " "); part != "" {
			skills = append(skills, part)
		}
	}
	return skills
}
