package interactive

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		want       bool
		wantOutput string
	}{
		{"yes", "y\n", true, "Roll back h1? [y/N] "},
		{"yes word", "YES\n", true, ""},
		{"no", "n\n", false, ""},
		{"empty means no", "\n", false, ""},
		{"end of input", "", false, ""},
		{"invalid", "maybe\n", false, "Invalid response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			p := NewPrompterWithIO(strings.NewReader(tt.input), output)

			if got := p.Confirm("Roll back %s?", "h1"); got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(output.String(), tt.wantOutput) {
				t.Errorf("output = %q, want it to contain %q", output.String(), tt.wantOutput)
			}
		})
	}
}

func TestConfirm_AssumeYes(t *testing.T) {
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(strings.NewReader("n\n"), output).AssumeYes()

	if !p.Confirm("Remove?") {
		t.Error("Confirm() = false with AssumeYes")
	}
	if output.Len() != 0 {
		t.Errorf("AssumeYes should not print, got %q", output.String())
	}
}

func TestConfirm_MultipleQuestions(t *testing.T) {
	p := NewPrompterWithIO(strings.NewReader("y\nn\n"), &bytes.Buffer{})

	if !p.Confirm("first?") {
		t.Error("first Confirm() = false, want true")
	}
	if p.Confirm("second?") {
		t.Error("second Confirm() = true, want false")
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(strings.NewReader("")) {
		t.Error("IsTerminal(strings.Reader) = true")
	}

	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if IsTerminal(f) {
		t.Error("IsTerminal(regular file) = true")
	}
}
