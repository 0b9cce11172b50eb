package calls

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu           sync.Mutex
	calls        map[string]Call
	participants map[string][]Participant
	submissions  map[string][]Submission
	clock        func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls:        map[string]Call{},
		participants: map[string][]Participant{},
		submissions:  map[string][]Submission{},
		clock:        time.Now,
	}
}

func subKey(callID, participantID string) string { return callID + "|" + participantID }

func (r *MemoryRepo) CreateCall(ctx context.Context, c Call, participants []Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.calls[c.ID]; ok {
		return ErrConflict
	}
	seen := map[string]struct{}{}
	for _, p := range participants {
		if p.AccessToken == "" {
			continue
		}
		if _, dup := seen[p.AccessToken]; dup {
			return ErrTokenConflict
		}
		seen[p.AccessToken] = struct{}{}
		for _, ps := range r.participants {
			for _, existing := range ps {
				if existing.AccessToken == p.AccessToken {
					return ErrTokenConflict
				}
			}
		}
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	r.calls[c.ID] = c
	r.participants[c.ID] = append([]Participant(nil), participants...)
	return nil
}

func (r *MemoryRepo) GetCall(ctx context.Context, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListCallsByStatus(ctx context.Context, statuses ...Status) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
				break
			}
		}
	}
	sortByCreated(out, false)
	return out, nil
}

func (r *MemoryRepo) ListCallsForUser(ctx context.Context, userID, email string) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for id, c := range r.calls {
		if c.OrganizerID == userID {
			out = append(out, c)
			continue
		}
		for _, p := range r.participants[id] {
			if (userID != "" && p.UserID == userID) || (email != "" && strings.EqualFold(p.Email, email)) {
				out = append(out, c)
				break
			}
		}
	}
	sortByCreated(out, true)
	return out, nil
}

func (r *MemoryRepo) ListCallsByOrganizer(ctx context.Context, organizerID string, from, to time.Time) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.OrganizerID != organizerID {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		out = append(out, c)
	}
	sortByCreated(out, false)
	return out, nil
}

func (r *MemoryRepo) TransitionCall(ctx context.Context, id string, from Status, t Transition) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.Status != from {
		return false, nil
	}
	now := r.clock().UTC()
	c.Status = t.To
	if t.ScheduledAt != nil {
		at := *t.ScheduledAt
		c.ScheduledAt = &at
	}
	if t.MeetingLink != "" {
		c.MeetingLink = t.MeetingLink
	}
	if t.EventID != "" {
		c.EventID = t.EventID
	}
	if t.CancelReason != "" {
		c.CancelReason = t.CancelReason
	}
	if t.ReconnectParticipantID != "" {
		c.ReconnectParticipantID = t.ReconnectParticipantID
	}
	c.NoticePending = t.NoticePending
	c.UpdatedAt = now
	r.calls[id] = c

	if t.LinkStatus != "" {
		ps := r.participants[id]
		for i := range ps {
			if len(t.LinkFrom) == 0 || containsResponse(t.LinkFrom, ps[i].Response) {
				ps[i].Response = t.LinkStatus
				ps[i].UpdatedAt = now
			}
		}
	}
	return true, nil
}

func (r *MemoryRepo) ClearNoticePending(ctx context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status == status {
		c.NoticePending = false
		r.calls[id] = c
	}
	return nil
}

func (r *MemoryRepo) ListParticipants(ctx context.Context, callID string) ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Participant(nil), r.participants[callID]...), nil
}

func (r *MemoryRepo) GetParticipantByToken(ctx context.Context, token string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token == "" {
		return Participant{}, ErrNotFound
	}
	for _, ps := range r.participants {
		for _, p := range ps {
			if p.AccessToken == token {
				return p, nil
			}
		}
	}
	return Participant{}, ErrNotFound
}

func (r *MemoryRepo) UpdateResponse(ctx context.Context, callID, participantID string, from []ResponseStatus, to ResponseStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findLocked(callID, participantID)
	if p == nil {
		return false, ErrNotFound
	}
	if !containsResponse(from, p.Response) {
		return false, nil
	}
	p.Response = to
	p.UpdatedAt = r.clock().UTC()
	return true, nil
}

func (r *MemoryRepo) RecordReminder(ctx context.Context, callID, participantID string, prevSent int, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findLocked(callID, participantID)
	if p == nil {
		return false, ErrNotFound
	}
	if p.RemindersSent != prevSent {
		return false, nil
	}
	p.RemindersSent++
	ts := at
	p.LastReminderAt = &ts
	p.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepo) ResetParticipant(ctx context.Context, callID, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findLocked(callID, participantID)
	if p == nil {
		return ErrNotFound
	}
	p.Response = ResponseWaiting
	p.RemindersSent = 0
	p.LastReminderAt = nil
	p.UpdatedAt = r.clock().UTC()
	delete(r.submissions, subKey(callID, participantID))
	return nil
}

func (r *MemoryRepo) ListSubmissions(ctx context.Context, callID, participantID string) ([]Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]Submission(nil), r.submissions[subKey(callID, participantID)]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *MemoryRepo) SubmitAvailability(ctx context.Context, callID, participantID string, subs []Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findLocked(callID, participantID)
	if p == nil {
		return ErrNotFound
	}
	key := subKey(callID, participantID)
	if len(r.submissions[key]) > 0 {
		return ErrAlreadySubmitted
	}
	r.submissions[key] = append([]Submission(nil), subs...)
	p.Response = ResponseAccepted
	p.UpdatedAt = r.clock().UTC()
	return nil
}

// SetParticipant overwrites a stored link. Tests use it to arrange state.
func (r *MemoryRepo) SetParticipant(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.findLocked(p.CallID, p.ParticipantID); existing != nil {
		*existing = p
		return
	}
	r.participants[p.CallID] = append(r.participants[p.CallID], p)
}

// SetCall overwrites a stored call. Tests use it to arrange state.
func (r *MemoryRepo) SetCall(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[c.ID] = c
}

func (r *MemoryRepo) findLocked(callID, participantID string) *Participant {
	ps := r.participants[callID]
	for i := range ps {
		if ps[i].ParticipantID == participantID {
			return &ps[i]
		}
	}
	return nil
}

func containsResponse(list []ResponseStatus, r ResponseStatus) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}

func sortByCreated(list []Call, newestFirst bool) {
	sort.Slice(list, func(i, j int) bool {
		if newestFirst {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
