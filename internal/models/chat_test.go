package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestCanonicalPairIsOrderIndependent(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	first1, second1 := CanonicalPair(a, b)
	first2, second2 := CanonicalPair(b, a)

	if first1 != a || second1 != b {
		t.Fatalf("expected (%s, %s), got (%s, %s)", a, b, first1, second1)
	}
	if first1 != first2 || second1 != second2 {
		t.Fatalf("pair order depends on argument order: (%s, %s) vs (%s, %s)", first1, second1, first2, second2)
	}
}

func TestConversationOtherParticipant(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	conversation := Conversation{User1ID: a, User2ID: b}

	if conversation.OtherParticipant(a) != b || conversation.OtherParticipant(b) != a {
		t.Fatal("OtherParticipant returned the wrong side")
	}
	if conversation.HasParticipant(uuid.New()) {
		t.Fatal("unexpected participant")
	}
}

func TestUserBasicDisplayNameTrims(t *testing.T) {
	user := UserBasic{FirstName: "Ana", LastName: ""}
	if got := user.DisplayName(); got != "Ana" {
		t.Fatalf("expected %q, got %q", "Ana", got)
	}
}
