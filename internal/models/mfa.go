package models

// MFASetupResponse carries the provisioning material for an authenticator app.
type MFASetupResponse struct {
	Secret    string `json:"secret"`
	QRCode    string `json:"qr_code"` // data:image/png;base64,...
	ManualKey string `json:"manual_key"`
}

type MFACodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
}

// MFAConfirmResponse is returned once when MFA is enabled. Backup codes are
// never retrievable afterwards.
type MFAConfirmResponse struct {
	MFAEnabled  bool     `json:"mfa_enabled"`
	BackupCodes []string `json:"backup_codes"`
}

type MFAVerifyResponse struct {
	MFAVerified   bool `json:"mfa_verified"`
	UsedBackup    bool `json:"used_backup_code,omitempty"`
	BackupsRemain int  `json:"backup_codes_remaining,omitempty"`
}
