package domain

import "github.com/google/uuid"

// Identity is the verified caller tuple handed in by the identity provider.
// This subsystem never issues or validates credentials beyond the hub
// handshake; it only attributes actions.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Name   string
}

// Project is the minimal project read-model fetched at publish time.
type Project struct {
	ID   uuid.UUID
	Name string
}

// User is the minimal user read-model fetched at publish time.
type User struct {
	ID    uuid.UUID
	Name  string
	Email string
}
