package semantics

import "testing"

func TestInferHomeOnlyPresent(t *testing.T) {
	yesIsHome, ok := Infer("Will Arsenal win?", "Arsenal", "Chelsea")
	if !ok || !yesIsHome {
		t.Errorf("expected yesIsHome=true ok=true, got %v %v", yesIsHome, ok)
	}
}

func TestInferAwayOnlyPresent(t *testing.T) {
	yesIsHome, ok := Infer("Will Chelsea win?", "Arsenal", "Chelsea")
	if !ok || yesIsHome {
		t.Errorf("expected yesIsHome=false ok=true, got %v %v", yesIsHome, ok)
	}
}

func TestInferBothPresentPhraseDisambiguates(t *testing.T) {
	yesIsHome, ok := Infer("Arsenal to win vs Chelsea", "Arsenal", "Chelsea")
	if !ok || !yesIsHome {
		t.Errorf("expected yesIsHome=true ok=true, got %v %v", yesIsHome, ok)
	}
}

func TestInferBothPresentAmbiguousSkipped(t *testing.T) {
	_, ok := Infer("Arsenal vs Chelsea winner market", "Arsenal", "Chelsea")
	if ok {
		t.Error("expected ambiguous question with no disambiguating phrase to be skipped")
	}
}

func TestInferRejectsNonWinnerMarket(t *testing.T) {
	_, ok := Infer("Will Arsenal win by over 2.5 goals?", "Arsenal", "Chelsea")
	if ok {
		t.Error("expected a total/spread-style market to be rejected")
	}
}

func TestInferRejectsMissingWinnerKeyword(t *testing.T) {
	_, ok := Infer("Arsenal match today", "Arsenal", "Chelsea")
	if ok {
		t.Error("expected a question without a winner keyword to be rejected")
	}
}

func TestInferFallsBackToFirstTokenForMultiWordTeamNames(t *testing.T) {
	yesIsHome, ok := Infer("Will Manchester win?", "Manchester United", "Chelsea")
	if !ok || !yesIsHome {
		t.Errorf("expected first-token fallback to match, got %v %v", yesIsHome, ok)
	}
}
