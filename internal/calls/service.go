package calls

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"meeting-scheduler/internal/audit"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrConflict         = errors.New("conflict")
	ErrTokenConflict    = errors.New("access token conflict")
	ErrAlreadySubmitted = errors.New("availability already submitted")
	ErrCallClosed       = errors.New("call is no longer open")
)

const (
	maxTitleLen = 100
	maxNotesLen = 500

	// tokenAttempts bounds regenerate-and-retry on access token collisions.
	tokenAttempts = 3

	defaultCalendarID = "primary"
)

// CalendarDirectory resolves which invitees have a connected calendar.
type CalendarDirectory interface {
	CalendarOwner(ctx context.Context, email string) (ownerID string, ok bool, err error)
}

// RunRequester asks the orchestrator to process a call soon.
type RunRequester interface {
	RequestRun(ctx context.Context, callID string) error
}

type Options struct {
	AllowedDurations []int
	Logger           *slog.Logger
}

// Service handles call intake and the participant-facing availability flow.
// It never moves a call's status; that belongs to the orchestrator.
type Service struct {
	repo    Repository
	dir     CalendarDirectory
	runs    RunRequester
	audit   *audit.Service
	allowed map[int]struct{}
	log     *slog.Logger

	clock    func() time.Time
	newToken func() (string, error)
}

func NewService(repo Repository, dir CalendarDirectory, opts Options) *Service {
	allowed := make(map[int]struct{}, len(opts.AllowedDurations))
	for _, d := range opts.AllowedDurations {
		allowed[d] = struct{}{}
	}
	if len(allowed) == 0 {
		allowed = map[int]struct{}{30: {}, 45: {}, 60: {}}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		allowed:  allowed,
		log:      log,
		clock:    time.Now,
		newToken: NewAccessToken,
	}
}

// WithRunRequester makes intake changes trigger an immediate orchestrator run.
func (s *Service) WithRunRequester(r RunRequester) *Service {
	s.runs = r
	return s
}

// WithAudit records participant-driven changes on the call's audit trail.
func (s *Service) WithAudit(a *audit.Service) *Service {
	s.audit = a
	return s
}

// NewAccessToken returns 256 random bits, URL-safe encoded.
func NewAccessToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type Organizer struct {
	UserID string
	Name   string
	Email  string
}

type ParticipantInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CreateRequest struct {
	Title           string             `json:"title"`
	Kind            string             `json:"kind"`
	DurationMinutes int                `json:"duration_minutes"`
	Notes           string             `json:"notes,omitempty"`
	Deadline        *time.Time         `json:"deadline,omitempty"`
	Participants    []ParticipantInput `json:"participants"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func (s *Service) validate(org Organizer, req CreateRequest, now time.Time) (Kind, []ParticipantInput, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", nil, invalid("title is required")
	}
	if len([]rune(title)) > maxTitleLen {
		return "", nil, invalid("title must be at most %d characters", maxTitleLen)
	}
	if len([]rune(req.Notes)) > maxNotesLen {
		return "", nil, invalid("notes must be at most %d characters", maxNotesLen)
	}
	kind, ok := ParseKind(req.Kind)
	if !ok {
		return "", nil, invalid("unknown kind %q", req.Kind)
	}
	if _, ok := s.allowed[req.DurationMinutes]; !ok {
		return "", nil, invalid("duration %d is not allowed", req.DurationMinutes)
	}
	if req.Deadline != nil && !req.Deadline.After(now) {
		return "", nil, invalid("deadline must be in the future")
	}
	if org.UserID == "" || org.Email == "" {
		return "", nil, invalid("organizer identity is required")
	}
	if len(req.Participants) == 0 {
		return "", nil, invalid("at least one participant is required")
	}

	orgEmail := strings.ToLower(strings.TrimSpace(org.Email))
	seen := map[string]struct{}{}
	out := make([]ParticipantInput, 0, len(req.Participants))
	for i, p := range req.Participants {
		name := strings.TrimSpace(p.Name)
		email := strings.ToLower(strings.TrimSpace(p.Email))
		if name == "" {
			return "", nil, invalid("participant %d: name is required", i)
		}
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return "", nil, invalid("participant %d: invalid email", i)
		}
		if email == orgEmail {
			return "", nil, invalid("participant %d: the organizer is added automatically", i)
		}
		if _, dup := seen[email]; dup {
			return "", nil, invalid("participant %d: duplicate email %s", i, email)
		}
		seen[email] = struct{}{}
		out = append(out, ParticipantInput{Name: name, Email: email})
	}
	return kind, out, nil
}

// Create validates the request, links every invitee (plus the organizer) to a
// new call in processing, and hands out availability links to invitees
// without a connected calendar.
func (s *Service) Create(ctx context.Context, org Organizer, req CreateRequest) (Call, []Participant, error) {
	now := s.clock().UTC()
	kind, invitees, err := s.validate(org, req, now)
	if err != nil {
		return Call{}, nil, err
	}

	c := Call{
		ID:              uuid.NewString(),
		OrganizerID:     org.UserID,
		Title:           strings.TrimSpace(req.Title),
		Kind:            kind,
		DurationMinutes: req.DurationMinutes,
		Notes:           strings.TrimSpace(req.Notes),
		Status:          StatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Deadline != nil {
		d := req.Deadline.UTC()
		c.Deadline = &d
	}

	all := append([]ParticipantInput{{Name: org.Name, Email: strings.ToLower(strings.TrimSpace(org.Email))}}, invitees...)
	participants := make([]Participant, 0, len(all))
	for i, in := range all {
		p := Participant{
			CallID:        c.ID,
			ParticipantID: uuid.NewString(),
			Name:          in.Name,
			Email:         in.Email,
			Response:      ResponseWaiting,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if i == 0 {
			p.UserID = org.UserID
			if p.Name == "" {
				p.Name = in.Email
			}
		}
		owner, ok, err := s.lookupCalendar(ctx, in.Email)
		if err != nil {
			return Call{}, nil, err
		}
		if ok {
			p.UserID = owner
			p.HasCalendar = true
			p.CalendarID = defaultCalendarID
			p.Response = ResponseAccepted
		}
		participants = append(participants, p)
	}

	if err := s.insertWithFreshTokens(ctx, c, participants); err != nil {
		return Call{}, nil, err
	}
	s.log.Info("call created", "call_id", c.ID, "participants", len(participants))
	s.requestRun(ctx, c.ID)
	return c, participants, nil
}

func (s *Service) lookupCalendar(ctx context.Context, email string) (string, bool, error) {
	if s.dir == nil {
		return "", false, nil
	}
	owner, ok, err := s.dir.CalendarOwner(ctx, email)
	if err != nil {
		return "", false, fmt.Errorf("calendar lookup: %w", err)
	}
	return owner, ok && owner != "", nil
}

func (s *Service) insertWithFreshTokens(ctx context.Context, c Call, participants []Participant) error {
	var err error
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		for i := range participants {
			if participants[i].HasCalendar {
				continue
			}
			tok, terr := s.newToken()
			if terr != nil {
				return terr
			}
			participants[i].AccessToken = tok
		}
		err = s.repo.CreateCall(ctx, c, participants)
		if !errors.Is(err, ErrTokenConflict) {
			return err
		}
		s.log.Warn("access token collision, regenerating", "call_id", c.ID, "attempt", attempt+1)
	}
	return err
}

// ParticipantView is what other participants may see about a link.
type ParticipantView struct {
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	HasCalendar bool           `json:"has_calendar"`
	Response    ResponseStatus `json:"response_status"`
}

type Details struct {
	Call         Call              `json:"call"`
	Participants []ParticipantView `json:"participants"`
	Self         ParticipantView   `json:"self"`
	Submissions  []Submission      `json:"submissions"`
	Suggestions  []time.Time       `json:"suggestions"`
}

var suggestionOffsets = []time.Duration{time.Hour, 4 * time.Hour, 24 * time.Hour}

// Details returns what an availability link holder sees.
func (s *Service) Details(ctx context.Context, token string) (Details, error) {
	p, c, err := s.resolveToken(ctx, token)
	if err != nil {
		return Details{}, err
	}
	ps, err := s.repo.ListParticipants(ctx, c.ID)
	if err != nil {
		return Details{}, err
	}
	subs, err := s.repo.ListSubmissions(ctx, c.ID, p.ParticipantID)
	if err != nil {
		return Details{}, err
	}

	out := Details{Call: c, Self: view(p), Submissions: subs}
	for _, other := range ps {
		out.Participants = append(out.Participants, view(other))
	}
	now := s.clock().UTC().Truncate(time.Minute)
	for _, off := range suggestionOffsets {
		at := now.Add(off)
		if c.Deadline != nil && !at.Before(*c.Deadline) {
			continue
		}
		out.Suggestions = append(out.Suggestions, at)
	}
	return out, nil
}

func view(p Participant) ParticipantView {
	return ParticipantView{Name: p.Name, Email: p.Email, HasCalendar: p.HasCalendar, Response: p.Response}
}

type SubmissionInput struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Submit stores the participant's availability and marks the link accepted.
// A link submits at most once until reopened.
func (s *Service) Submit(ctx context.Context, token string, items []SubmissionInput) error {
	p, c, err := s.resolveToken(ctx, token)
	if err != nil {
		return err
	}
	if c.Status != StatusProcessing {
		return ErrCallClosed
	}
	if p.HasCalendar {
		return invalid("calendar-linked participants do not submit availability")
	}
	if p.Response.Refused() {
		return ErrCallClosed
	}
	if p.Response == ResponseAccepted {
		return ErrAlreadySubmitted
	}
	if len(items) == 0 {
		return invalid("at least one availability window is required")
	}

	subs := make([]Submission, 0, len(items))
	beforeDeadline := c.Deadline == nil
	for i, it := range items {
		if it.Start.IsZero() {
			return invalid("window %d: start is required", i)
		}
		if it.DurationMinutes <= 0 {
			return invalid("window %d: duration must be positive", i)
		}
		if c.Deadline != nil && it.Start.Before(*c.Deadline) {
			beforeDeadline = true
		}
		subs = append(subs, Submission{
			CallID:          c.ID,
			ParticipantID:   p.ParticipantID,
			Start:           it.Start.UTC(),
			DurationMinutes: it.DurationMinutes,
		})
	}
	if !beforeDeadline {
		return invalid("at least one window must start before the deadline")
	}

	if err := s.repo.SubmitAvailability(ctx, c.ID, p.ParticipantID, subs); err != nil {
		return err
	}
	s.log.Info("availability submitted", "call_id", c.ID, "participant_id", p.ParticipantID, "windows", len(subs))
	s.requestRun(ctx, c.ID)
	return nil
}

// Decline records the participant's refusal. The call itself is canceled by
// the orchestrator on its next run.
func (s *Service) Decline(ctx context.Context, token string) error {
	p, c, err := s.resolveToken(ctx, token)
	if err != nil {
		return err
	}
	if c.Status.Terminal() {
		return nil
	}
	if c.Status != StatusProcessing {
		return ErrCallClosed
	}
	if _, err := s.repo.UpdateResponse(ctx, c.ID, p.ParticipantID,
		[]ResponseStatus{ResponseWaiting, ResponseAccepted}, ResponseDeclined); err != nil {
		return err
	}
	s.log.Info("participant declined", "call_id", c.ID, "participant_id", p.ParticipantID)
	s.requestRun(ctx, c.ID)
	return nil
}

// Reopen discards the participant's submissions so they can submit again.
func (s *Service) Reopen(ctx context.Context, token string) error {
	p, c, err := s.resolveToken(ctx, token)
	if err != nil {
		return err
	}
	if c.Status != StatusProcessing || p.Response.Refused() {
		return ErrCallClosed
	}
	if p.HasCalendar {
		return invalid("calendar-linked participants do not submit availability")
	}
	if err := s.repo.ResetParticipant(ctx, c.ID, p.ParticipantID); err != nil {
		return err
	}
	s.audit.Record(ctx, c.ID, audit.EventParticipantReset, "availability reopened",
		map[string]any{"participant_id": p.ParticipantID})
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID, email string) ([]Call, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListCallsForUser(ctx, userID, email)
}

func (s *Service) resolveToken(ctx context.Context, token string) (Participant, Call, error) {
	p, err := s.repo.GetParticipantByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return Participant{}, Call{}, err
	}
	c, err := s.repo.GetCall(ctx, p.CallID)
	if err != nil {
		return Participant{}, Call{}, err
	}
	return p, c, nil
}

func (s *Service) requestRun(ctx context.Context, callID string) {
	if s.runs == nil {
		return
	}
	if err := s.runs.RequestRun(ctx, callID); err != nil {
		s.log.Warn("run request failed", "call_id", callID, "err", err)
	}
}
