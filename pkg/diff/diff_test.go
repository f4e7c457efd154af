package diff

import (
	"bytes"
	"testing"

	"github.com/cloudtracker/cloudtracker/pkg/action"
	"github.com/cloudtracker/cloudtracker/pkg/backend"
	"github.com/cloudtracker/cloudtracker/pkg/catalog"
	"github.com/cloudtracker/cloudtracker/pkg/iam"
)

func invokedOf(actions ...string) backend.InvokedSet {
	s := make(backend.InvokedSet, len(actions))
	for _, a := range actions {
		s[action.Action(a)] = true
	}
	return s
}

func grantedOf(actions ...string) iam.GrantedSet {
	s := make(iam.GrantedSet, len(actions))
	for _, a := range actions {
		s[action.Action(a)] = true
	}
	return s
}

func TestPrintActorDiff_Scenario1(t *testing.T) {
	var buf bytes.Buffer
	performed := map[string]bool{"alice": true, "bob": true}
	existing := map[string]bool{"alice": true, "bob": true, "charlie": true}

	PrintActorDiff(&buf, performed, existing, false)

	want := "  alice\n  bob\n- charlie\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	return c
}

func TestPrintDiff_Scenario2_SimpleMatch(t *testing.T) {
	var buf bytes.Buffer
	invoked := invokedOf("s3:createbucket")
	granted := grantedOf("s3:createbucket")

	PrintDiff(&buf, invoked, granted, mustCatalog(t), Filters{ShowBenign: true, ShowUsed: false, ShowUnknown: true})

	want := "  s3:createbucket\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintDiff_Scenario3_MixedLabels(t *testing.T) {
	var buf bytes.Buffer
	invoked := invokedOf("s3:createbucket", "sts:getcalleridentity")
	granted := grantedOf("s3:createbucket", "s3:putobject", "s3:deletebucket")

	PrintDiff(&buf, invoked, granted, mustCatalog(t), Filters{ShowBenign: true, ShowUsed: false, ShowUnknown: true})

	want := "  s3:createbucket\n- s3:deletebucket\n? s3:putobject\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintDiff_Scenario4_ShowUsedSuppressesUnusedGrants(t *testing.T) {
	var buf bytes.Buffer
	invoked := invokedOf("s3:createbucket", "sts:getcalleridentity")
	granted := grantedOf("s3:createbucket", "s3:putobject", "s3:deletebucket")

	PrintDiff(&buf, invoked, granted, mustCatalog(t), Filters{ShowBenign: true, ShowUsed: true, ShowUnknown: true})

	want := "  s3:createbucket\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintDiff_Scenario5_ShowUnknownFalseDropsGrantedNotLogged(t *testing.T) {
	var buf bytes.Buffer
	invoked := invokedOf("s3:createbucket", "sts:getcalleridentity")
	granted := grantedOf("s3:createbucket", "s3:putobject", "s3:deletebucket")

	PrintDiff(&buf, invoked, granted, mustCatalog(t), Filters{ShowBenign: true, ShowUsed: false, ShowUnknown: false})

	want := "  s3:createbucket\n- s3:deletebucket\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintDiff_InvokedNotGranted(t *testing.T) {
	var buf bytes.Buffer
	invoked := invokedOf("ec2:runinstances")
	granted := grantedOf()

	PrintDiff(&buf, invoked, granted, mustCatalog(t), Filters{ShowBenign: true, ShowUsed: false, ShowUnknown: true})

	want := "+ ec2:runinstances\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintDiff_ShowBenignFalseDropsListAndDescribe(t *testing.T) {
	var buf bytes.Buffer
	invoked := invokedOf("ec2:describeinstances")
	granted := grantedOf("s3:listallmybuckets")

	PrintDiff(&buf, invoked, granted, mustCatalog(t), Filters{ShowBenign: false, ShowUsed: false, ShowUnknown: true})

	if buf.Len() != 0 {
		t.Fatalf("expected benign actions to be dropped, got %q", buf.String())
	}
}

func TestPrintDiff_NoIAMActionsDropped(t *testing.T) {
	var buf bytes.Buffer
	invoked := invokedOf("signin:consolelogin")
	granted := grantedOf()

	PrintDiff(&buf, invoked, granted, mustCatalog(t), Filters{ShowBenign: true, ShowUsed: false, ShowUnknown: true})

	if buf.Len() != 0 {
		t.Fatalf("expected NoIAM actions to never appear, got %q", buf.String())
	}
}
