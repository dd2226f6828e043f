// Package intake collects a tenant's bot configuration one field at a time
// through a fixed sequence of prompts, validating each value before the
// session advances.
package intake

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Step is one position in the intake sequence.
type Step int

const (
	StepClientID Step = iota
	StepClientSecret
	StepStorageURI
	StepBotToken
	StepLogChannel
	StepSessionBlob
	StepOwnerID
	StepStartImage

	stepCount
)

// skipSentinel lets a user fall back to the configured default on optional
// steps. Matched case-insensitively.
const skipSentinel = "none"

var (
	ErrNoSession = errors.New("no active intake session")

	botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	logGroupPattern = regexp.MustCompile(`^-?\d+$`)
)

// Config is the tenant configuration assembled by a completed session.
type Config struct {
	APIID         string
	APIHash       string
	MongoURI      string
	BotToken      string
	LogGroupID    string
	StringSession string
	OwnerID       string
	StartImgURL   string
}

// Defaults supplies the values substituted when a user skips an optional step.
type Defaults struct {
	APIID    string
	APIHash  string
	MongoURI string
}

// Session tracks one user's progress through the sequence.
type session struct {
	userID  int64
	current Step
	cfg     Config
}

// Result is the outcome of submitting one message to a session.
type Result struct {
	// Reply is the next prompt, or the validation message when Invalid.
	Reply string
	// Invalid reports a rejected value; the step did not advance.
	Invalid bool
	// Done reports that all steps completed; Config holds the result and
	// the session has been discarded.
	Done   bool
	Config *Config
}

// Manager owns all in-flight intake sessions, keyed by user identity.
type Manager struct {
	mu       sync.Mutex
	defaults Defaults
	sessions map[int64]*session
}

func NewManager(defaults Defaults) *Manager {
	return &Manager{
		defaults: defaults,
		sessions: make(map[int64]*session),
	}
}

// Begin starts (or restarts) a session for the user and returns the first
// prompt.
func (m *Manager) Begin(userID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[userID] = &session{userID: userID, current: StepClientID}
	return steps[StepClientID].prompt
}

// Active reports whether the user has an in-flight session.
func (m *Manager) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[userID]
	return ok
}

// Cancel discards the user's session if one exists.
func (m *Manager) Cancel(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
}

// Current returns the step the user's session is waiting on.
func (m *Manager) Current(userID int64) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return 0, ErrNoSession
	}
	return s.current, nil
}

// Submit applies one message to the user's session. Invalid values re-prompt
// without advancing; the final accepted value completes the session and
// returns the assembled config.
func (m *Manager) Submit(userID int64, text string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return Result{}, ErrNoSession
	}

	spec := steps[s.current]
	value := strings.TrimSpace(text)
	skipped := spec.skippable && strings.EqualFold(value, skipSentinel)

	if !skipped && spec.validate != nil && !spec.validate(value) {
		return Result{Reply: spec.invalid, Invalid: true}, nil
	}

	if skipped {
		spec.applySkip(m, s)
	} else {
		spec.apply(&s.cfg, value)
	}

	s.current++
	if s.current >= stepCount {
		cfg := s.cfg
		delete(m.sessions, userID)
		return Result{Done: true, Config: &cfg}, nil
	}
	return Result{Reply: steps[s.current].prompt}, nil
}

type stepSpec struct {
	prompt    string
	invalid   string
	skippable bool
	validate  func(string) bool
	apply     func(*Config, string)
	applySkip func(*Manager, *session)
}

var steps = [stepCount]stepSpec{
	StepClientID: {
		prompt:    "Let's set up your Music Bot!\n\nPlease provide your Telegram API ID or type 'None' to use the default value.",
		invalid:   "API ID should be a numeric value. Please try again or type 'None'.",
		skippable: true,
		validate:  isDigits,
		apply:     func(c *Config, v string) { c.APIID = v },
		applySkip: func(m *Manager, s *session) { s.cfg.APIID = m.defaults.APIID },
	},
	StepClientSecret: {
		prompt:    "Great! Now please provide your API Hash or type 'None' to use the default value.",
		skippable: true,
		apply:     func(c *Config, v string) { c.APIHash = v },
		applySkip: func(m *Manager, s *session) { s.cfg.APIHash = m.defaults.APIHash },
	},
	StepStorageURI: {
		prompt:    "Now please provide your MongoDB URI or type 'None' to use the default value.",
		skippable: true,
		apply:     func(c *Config, v string) { c.MongoURI = v },
		applySkip: func(m *Manager, s *session) { s.cfg.MongoURI = m.defaults.MongoURI },
	},
	StepBotToken: {
		prompt:   "Now please provide your Bot Token (this is required).",
		invalid:  "That doesn't look like a valid bot token. Please try again.",
		validate: botTokenPattern.MatchString,
		apply:    func(c *Config, v string) { c.BotToken = v },
	},
	StepLogChannel: {
		prompt: "Now please provide your Log Group ID (this is required).\n" +
			"Note: Your bot must be in this group, the VC must always be on, " +
			"and the bot must be an admin in the group.",
		invalid:  "That doesn't look like a valid group ID. Please try again.",
		validate: logGroupPattern.MatchString,
		apply:    func(c *Config, v string) { c.LogGroupID = v },
	},
	StepSessionBlob: {
		prompt: "Now please provide your Pyrogram String Session (this is required).",
		apply:  func(c *Config, v string) { c.StringSession = v },
	},
	StepOwnerID: {
		prompt:    "Now please provide your Owner ID or type 'None' to skip.",
		invalid:   "Owner ID should be a numeric value. Please try again or type 'None'.",
		skippable: true,
		validate:  isDigits,
		apply:     func(c *Config, v string) { c.OwnerID = v },
		applySkip: func(m *Manager, s *session) { s.cfg.OwnerID = strconv.FormatInt(s.userID, 10) },
	},
	StepStartImage: {
		prompt:    "Finally, please provide a URL for your Start Image or type 'None' to use the default.",
		invalid:   "That doesn't look like a valid URL. Please try again or type 'None'.",
		skippable: true,
		validate:  isHTTPURL,
		apply:     func(c *Config, v string) { c.StartImgURL = v },
		applySkip: func(_ *Manager, s *session) { s.cfg.StartImgURL = "" },
	},
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHTTPURL(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}
