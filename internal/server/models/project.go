package models

// Project is read by the policy engine to decide ownership and membership.
type Project struct {
	ID      string
	Name    string
	OwnerID string
	Members map[string]struct{}
}

// HasMember reports whether userID is in the project's member list.
func (p *Project) HasMember(userID string) bool {
	_, ok := p.Members[userID]
	return ok
}

// TaskItem belongs to exactly one project; authorization goes through it.
type TaskItem struct {
	ID        string
	ProjectID string
	Title     string
	Status    string
}
