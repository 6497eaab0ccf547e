package chatws

import "sync"

const roomPrefix = "conversation_"

func roomKey(conversationID string) string {
	return roomPrefix + conversationID
}

// Rooms groups sessions by conversation. Membership is routing scope only.
type Rooms struct {
	mu      sync.Mutex
	members map[string]map[*Client]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{members: make(map[string]map[*Client]struct{})}
}

func (r *Rooms) Join(conversationID string, client *Client) {
	key := roomKey(conversationID)

	r.mu.Lock()
	set, ok := r.members[key]
	if !ok {
		set = make(map[*Client]struct{})
		r.members[key] = set
	}
	set[client] = struct{}{}
	r.mu.Unlock()

	client.joinRoom(key)
}

func (r *Rooms) Leave(conversationID string, client *Client) {
	key := roomKey(conversationID)
	r.remove(key, client)
	client.leaveRoom(key)
}

// RemoveClient drops the session from every room it joined.
func (r *Rooms) RemoveClient(client *Client) {
	for _, key := range client.roomKeys() {
		r.remove(key, client)
		client.leaveRoom(key)
	}
}

func (r *Rooms) RoomSize(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[roomKey(conversationID)])
}

func (r *Rooms) remove(key string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[key]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(r.members, key)
	}
}
