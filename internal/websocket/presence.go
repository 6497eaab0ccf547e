package chatws

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Presence maps each online user to the set of their live sessions. A user is
// online exactly when that set is non-empty.
type Presence struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*Client]struct{}
}

func NewPresence() *Presence {
	return &Presence{sessions: make(map[uuid.UUID]map[*Client]struct{})}
}

// Register adds client under userID and reports whether it is the user's first session.
func (p *Presence) Register(userID uuid.UUID, client *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.sessions[userID]
	if !ok {
		set = make(map[*Client]struct{})
		p.sessions[userID] = set
	}
	set[client] = struct{}{}
	return !ok
}

// Deregister removes client and reports whether the user has no sessions left.
func (p *Presence) Deregister(userID uuid.UUID, client *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	set, ok := p.sessions[userID]
	if !ok {
		return false
	}
	if _, present := set[client]; !present {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(p.sessions, userID)
		return true
	}
	return false
}

func (p *Presence) Sessions(userID uuid.UUID) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set := p.sessions[userID]
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	return clients
}

// Others returns every live session not belonging to userID.
func (p *Presence) Others(userID uuid.UUID) []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clients := make([]*Client, 0)
	for owner, set := range p.sessions {
		if owner == userID {
			continue
		}
		for client := range set {
			clients = append(clients, client)
		}
	}
	return clients
}

func (p *Presence) All() []*Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clients := make([]*Client, 0)
	for _, set := range p.sessions {
		for client := range set {
			clients = append(clients, client)
		}
	}
	return clients
}

// OnlineUsers is sorted so callers get a stable listing.
func (p *Presence) OnlineUsers() []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(p.sessions))
	for userID := range p.sessions {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].String() < users[j].String()
	})
	return users
}

func (p *Presence) IsOnline(userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions[userID]) > 0
}

func (p *Presence) SessionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0
	for _, set := range p.sessions {
		count += len(set)
	}
	return count
}
