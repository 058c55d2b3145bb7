package entities

import (
	"encoding/json"
	"time"
)

// AuditLog represents a security audit log entry
type AuditLog struct {
	ID         string         `json:"id" db:"id"`
	UserID     *string        `json:"user_id,omitempty" db:"user_id"` // null when no user was identified
	Action     AuditAction    `json:"action" db:"action"`
	Resource   AuditResource  `json:"resource" db:"resource"`
	ResourceID *string        `json:"resource_id,omitempty" db:"resource_id"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"` // stored as JSON in DB
	Success    bool           `json:"success" db:"success"`
	ErrorMsg   *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// AuditAction represents the type of action being audited
type AuditAction string

const (
	// Federated credential actions
	ActionUserSignedUp     AuditAction = "user.signed_up"
	ActionUserSignUpFailed AuditAction = "user.sign_up_failed"
	ActionUserSignedIn     AuditAction = "user.signed_in"
	ActionUserSignInFailed AuditAction = "user.sign_in_failed"

	// First-party token actions
	ActionTokenRefreshed     AuditAction = "token.refreshed"
	ActionTokenRefreshFailed AuditAction = "token.refresh_failed"
	ActionTokensCleanedUp    AuditAction = "token.cleaned_up"
)

// AuditResource represents the type of resource being acted upon
type AuditResource string

const (
	ResourceUser                AuditResource = "user"
	ResourceFederatedCredential AuditResource = "federated_credential"
	ResourceRefreshToken        AuditResource = "refresh_token"
	ResourceSystem              AuditResource = "system"
)

// NewAuditLog creates a new audit log entry
func NewAuditLog(userID *string, action AuditAction, resource AuditResource) *AuditLog {
	return &AuditLog{
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Success:   true,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// WithResourceID sets the resource ID
func (a *AuditLog) WithResourceID(resourceID string) *AuditLog {
	a.ResourceID = &resourceID
	return a
}

// WithError marks the audit log as failed with an error message
func (a *AuditLog) WithError(err error) *AuditLog {
	a.Success = false
	msg := err.Error()
	a.ErrorMsg = &msg
	return a
}

// WithMetadata adds metadata to the audit log
func (a *AuditLog) WithMetadata(key string, value any) *AuditLog {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = value
	return a
}

// MarshalMetadataToJSON converts metadata map to JSON string for database storage
func (a *AuditLog) MarshalMetadataToJSON() (string, error) {
	if a.Metadata == nil {
		return "{}", nil
	}
	data, err := json.Marshal(a.Metadata)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalMetadataFromJSON converts JSON string from database to metadata map
func (a *AuditLog) UnmarshalMetadataFromJSON(data string) error {
	if data == "" || data == "{}" {
		a.Metadata = make(map[string]any)
		return nil
	}
	return json.Unmarshal([]byte(data), &a.Metadata)
}

// IsFailure returns true if the audited action failed
func (a *AuditLog) IsFailure() bool {
	switch a.Action {
	case ActionUserSignUpFailed, ActionUserSignInFailed, ActionTokenRefreshFailed:
		return true
	default:
		return !a.Success
	}
}
