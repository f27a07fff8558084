package services

import (
	"fmt"

	"dance-match-backend/internal/models"
)

// PairingPolicy decides which interested users form the other side of a
// user's interest in an event.
type PairingPolicy interface {
	Complements(event *models.Event, userID string, interested []string) []string
}

// PeerPolicy pairs every interested user with every other one
type PeerPolicy struct{}

func (PeerPolicy) Complements(_ *models.Event, userID string, interested []string) []string {
	var out []string
	for _, other := range interested {
		if other != userID {
			out = append(out, other)
		}
	}
	return out
}

// OrganizerPolicy pairs attendees with the event organizers only
type OrganizerPolicy struct{}

func (OrganizerPolicy) Complements(event *models.Event, userID string, interested []string) []string {
	userIsOrganizer := event.IsOrganizer(userID)
	var out []string
	for _, other := range interested {
		if other == userID {
			continue
		}
		if event.IsOrganizer(other) != userIsOrganizer {
			out = append(out, other)
		}
	}
	return out
}

// PolicyByName resolves the matching.policy setting
func PolicyByName(name string) (PairingPolicy, error) {
	switch name {
	case "", "peer":
		return PeerPolicy{}, nil
	case "organizer":
		return OrganizerPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown pairing policy %q", name)
}
