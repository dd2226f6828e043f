package intake

import (
	"errors"
	"testing"
)

func testDefaults() Defaults {
	return Defaults{APIID: "12345", APIHash: "default-hash", MongoURI: "mongodb://default"}
}

func TestSubmitWithoutSession(t *testing.T) {
	t.Parallel()
	m := NewManager(testDefaults())

	if _, err := m.Submit(1, "hello"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Submit without session err = %v, want ErrNoSession", err)
	}
}

func TestBeginReturnsFirstPrompt(t *testing.T) {
	t.Parallel()
	m := NewManager(testDefaults())

	prompt := m.Begin(1)
	if prompt != steps[StepClientID].prompt {
		t.Fatalf("Begin prompt = %q, want first step prompt", prompt)
	}
	if !m.Active(1) {
		t.Fatal("Active(1) = false after Begin")
	}
}

func TestFullSequenceWithSkips(t *testing.T) {
	t.Parallel()
	m := NewManager(testDefaults())
	m.Begin(42)

	inputs := []string{"none", "None", "NONE", "123456:abcDEF-token", "-10012345", "session-blob", "none", "none"}

	var final *Config
	for i, input := range inputs {
		res, err := m.Submit(42, input)
		if err != nil {
			t.Fatalf("Submit(%d, %q) error = %v", i, input, err)
		}
		if res.Invalid {
			t.Fatalf("Submit(%d, %q) unexpectedly invalid: %q", i, input, res.Reply)
		}
		if i < len(inputs)-1 && res.Done {
			t.Fatalf("Submit(%d) done too early", i)
		}
		if i == len(inputs)-1 {
			if !res.Done || res.Config == nil {
				t.Fatalf("final Submit not done: %+v", res)
			}
			final = res.Config
		}
	}

	want := Config{
		APIID:         "12345",
		APIHash:       "default-hash",
		MongoURI:      "mongodb://default",
		BotToken:      "123456:abcDEF-token",
		LogGroupID:    "-10012345",
		StringSession: "session-blob",
		OwnerID:       "42",
		StartImgURL:   "",
	}
	if *final != want {
		t.Fatalf("config = %+v, want %+v", *final, want)
	}

	if m.Active(42) {
		t.Fatal("session still active after completion")
	}
}

func TestInvalidValueDoesNotAdvance(t *testing.T) {
	t.Parallel()
	m := NewManager(testDefaults())
	m.Begin(7)

	res, err := m.Submit(7, "abc")
	if err != nil {
		t.Fatalf("Submit error = %v", err)
	}
	if !res.Invalid {
		t.Fatal("expected invalid result for non-numeric API ID")
	}
	if res.Reply != steps[StepClientID].invalid {
		t.Fatalf("reply = %q, want re-prompt message", res.Reply)
	}

	step, err := m.Current(7)
	if err != nil {
		t.Fatalf("Current error = %v", err)
	}
	if step != StepClientID {
		t.Fatalf("step = %v, want StepClientID", step)
	}
}

func TestPerStepValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		advance []string // valid inputs leading up to the step under test
		input   string
		wantOK  bool
	}{
		{name: "client id digits", advance: nil, input: "98765", wantOK: true},
		{name: "client id letters", advance: nil, input: "12a45", wantOK: false},
		{name: "bot token valid", advance: []string{"none", "none", "none"}, input: "99:token_OK-1", wantOK: true},
		{name: "bot token missing colon", advance: []string{"none", "none", "none"}, input: "99token", wantOK: false},
		{name: "bot token none not allowed", advance: []string{"none", "none", "none"}, input: "none", wantOK: false},
		{name: "log group negative", advance: []string{"none", "none", "none", "1:a"}, input: "-100123", wantOK: true},
		{name: "log group positive", advance: []string{"none", "none", "none", "1:a"}, input: "100123", wantOK: true},
		{name: "log group junk", advance: []string{"none", "none", "none", "1:a"}, input: "group", wantOK: false},
		{name: "owner id digits", advance: []string{"none", "none", "none", "1:a", "-1", "s"}, input: "555", wantOK: true},
		{name: "owner id junk", advance: []string{"none", "none", "none", "1:a", "-1", "s"}, input: "me", wantOK: false},
		{name: "start image https", advance: []string{"none", "none", "none", "1:a", "-1", "s", "none"}, input: "https://img.example/start.png", wantOK: true},
		{name: "start image bare host", advance: []string{"none", "none", "none", "1:a", "-1", "s", "none"}, input: "img.example/start.png", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(testDefaults())
			m.Begin(1)
			for _, input := range tt.advance {
				res, err := m.Submit(1, input)
				if err != nil || res.Invalid {
					t.Fatalf("advance %q failed: err=%v res=%+v", input, err, res)
				}
			}

			res, err := m.Submit(1, tt.input)
			if err != nil {
				t.Fatalf("Submit error = %v", err)
			}
			if got := !res.Invalid; got != tt.wantOK {
				t.Fatalf("Submit(%q) accepted = %v, want %v", tt.input, got, tt.wantOK)
			}
		})
	}
}

func TestCancelDiscardsSession(t *testing.T) {
	t.Parallel()
	m := NewManager(testDefaults())
	m.Begin(9)
	m.Cancel(9)

	if m.Active(9) {
		t.Fatal("session still active after Cancel")
	}
}

func TestBeginRestartsSession(t *testing.T) {
	t.Parallel()
	m := NewManager(testDefaults())
	m.Begin(3)
	if _, err := m.Submit(3, "111"); err != nil {
		t.Fatalf("Submit error = %v", err)
	}

	m.Begin(3)
	step, err := m.Current(3)
	if err != nil {
		t.Fatalf("Current error = %v", err)
	}
	if step != StepClientID {
		t.Fatalf("step after restart = %v, want StepClientID", step)
	}
}
