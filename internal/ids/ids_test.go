package ids

import (
	"regexp"
	"testing"
)

func TestShortIsTwelveHex(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{12}$`)
	for i := 0; i < 50; i++ {
		if s := Short(); !re.MatchString(s) {
			t.Fatalf("Expected 12 hex chars, got %q", s)
		}
	}
}

func TestNewIsValid(t *testing.T) {
	id := New()
	if !Valid(id) {
		t.Errorf("Expected %q to be valid", id)
	}
	if Valid("not-a-job") {
		t.Error("Expected garbage id to be invalid")
	}
}
