package driver

import "testing"

func TestChallengeAnswerer(t *testing.T) {
	answer := challengeAnswerer("hunter2-secret")

	answers, err := answer("", "login", []string{"Password:", "Verification code:"}, []bool{false, false})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("answers = %v, want one per question", answers)
	}
	for i, a := range answers {
		if a != "hunter2-secret" {
			t.Errorf("answer %d = %q", i, a)
		}
	}

	answers, err = answer("", "", nil, nil)
	if err != nil || len(answers) != 0 {
		t.Errorf("no questions should yield no answers, got %v, %v", answers, err)
	}
}
