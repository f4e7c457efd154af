package catalog

import "testing"

func TestLoad(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(c.Actions()) == 0 {
		t.Fatal("expected non-empty action catalog")
	}
}

func TestKnown(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !c.Known("s3:getobject") {
		t.Error("expected s3:getobject to be known")
	}
	if c.Known("notaservice:notanevent") {
		t.Error("did not expect notaservice:notanevent to be known")
	}
}

func TestCloudTrailLogged(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !c.CloudTrailLogged("s3:createbucket") {
		t.Error("expected s3:createbucket to be logged by cloudtrail")
	}
	// GenerateCredentialReport is deliberately present in the known-action
	// list but absent from the cloudtrail-logged subset.
	if c.CloudTrailLogged("iam:generatecredentialreport") {
		t.Error("expected iam:generatecredentialreport to not be logged by cloudtrail")
	}
}
