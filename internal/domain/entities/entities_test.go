package entities

import (
	"errors"
	"testing"
)

func TestNewFederatedUserCredentialUse(t *testing.T) {
	use := NewFederatedUserCredentialUse(map[string]any{"sub": "u", "jti": "t1"})
	if use.JTI == nil || *use.JTI != "t1" {
		t.Errorf("JTI = %v, want t1", use.JTI)
	}

	use = NewFederatedUserCredentialUse(map[string]any{"sub": "u"})
	if use.JTI != nil {
		t.Errorf("JTI = %v, want nil", *use.JTI)
	}

	data, err := use.MarshalClaimsToJSON()
	if err != nil || data != `{"sub":"u"}` {
		t.Errorf("MarshalClaimsToJSON() = %q, %v", data, err)
	}
}

func TestAuditLog(t *testing.T) {
	userID := "123"
	log := NewAuditLog(&userID, ActionUserSignedIn, ResourceUser).
		WithResourceID(userID).
		WithMetadata("provider", "acme")
	if !log.Success || log.IsFailure() {
		t.Errorf("new audit log should be successful")
	}

	log.WithError(errors.New("boom"))
	if log.Success || log.ErrorMsg == nil || *log.ErrorMsg != "boom" {
		t.Errorf("WithError() did not mark failure: %+v", log)
	}

	data, err := log.MarshalMetadataToJSON()
	if err != nil || data != `{"provider":"acme"}` {
		t.Errorf("MarshalMetadataToJSON() = %q, %v", data, err)
	}
}
