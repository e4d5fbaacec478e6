package models

import "time"

// Group is a class-scoped cluster of students sharing a computer.
type Group struct {
	ID         string    `db:"id" json:"id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	Name       string    `db:"name" json:"name"`
	ComputerID *string   `db:"computer_id" json:"computer_id,omitempty"`
	LeaderID   *string   `db:"leader_id" json:"leader_id,omitempty"`
	MaxMembers int       `db:"max_members" json:"max_members"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// GroupMember describes one member of a group for detail responses.
type GroupMember struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	SeatLabel   string `db:"seat_label" json:"seat_label"`
	IsLeader    bool   `db:"is_leader" json:"is_leader"`
}

// GroupDetail extends Group with its member roster.
type GroupDetail struct {
	Group
	Members []GroupMember `json:"members"`
}
