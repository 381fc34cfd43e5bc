package trade

import "github.com/google/uuid"

// ActorRole identifies who triggered a change
type ActorRole string

const (
	ActorCustomer ActorRole = "customer"
	ActorAdmin    ActorRole = "admin"
	ActorSystem   ActorRole = "system"
	ActorGateway  ActorRole = "gateway"
)

// IsValid returns true for known roles
func (r ActorRole) IsValid() bool {
	switch r {
	case ActorCustomer, ActorAdmin, ActorSystem, ActorGateway:
		return true
	}
	return false
}

// Actor is recorded on every audited mutation
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role ActorRole `json:"role"`
}

// SystemActor is used by reconciliation jobs
func SystemActor() Actor {
	return Actor{Role: ActorSystem}
}

// GatewayActor is used by payment webhooks
func GatewayActor() Actor {
	return Actor{Role: ActorGateway}
}

// AdminActor wraps an admin user id
func AdminActor(id uuid.UUID) Actor {
	return Actor{ID: id, Role: ActorAdmin}
}

// CustomerActor wraps a customer id
func CustomerActor(id uuid.UUID) Actor {
	return Actor{ID: id, Role: ActorCustomer}
}

// String renders the actor as "role:id", or just the role when it has no id
func (a Actor) String() string {
	if a.ID == uuid.Nil {
		return string(a.Role)
	}
	return string(a.Role) + ":" + a.ID.String()
}
